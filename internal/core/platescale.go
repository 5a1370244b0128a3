package core

import "github.com/kilupskalvis/dasch-science/internal/models"

// plateScaleBySeries holds plate scales in arcsec per millimeter, from the
// fitted scale where one exists and the nominal scale otherwise.
var plateScaleBySeries = map[string]float64{
	"a":      59.57,
	"ab":     590, // nominal
	"ac":     606.4,
	"aco":    611.3,
	"adh":    68, // nominal
	"ai":     1360,
	"ak":     614.5,
	"al":     1200, // nominal
	"am":     610.8,
	"an":     574, // nominal
	"ax":     695.7,
	"ay":     694.2,
	"b":      179.4,
	"bi":     1446,
	"bm":     384,
	"bo":     800, // nominal
	"br":     204,
	"c":      52.56,
	"ca":     596,
	"ctio":   18,
	"darnor": 890, // nominal
	"darsou": 890, // nominal
	"dnb":    577.3,
	"dnr":    579.7,
	"dny":    576.1,
	"dsb":    574.5,
	"dsr":    579.7,
	"dsy":    581.8,
	"ee":     330,
	"er":     390, // nominal
	"fa":     1298,
	"h":      59.6,
	"hale":   11.06, // nominal
	"i":      163.3,
	"ir":     164,
	"j":      98,   // nominal
	"jdar":   560,  // nominal
	"ka":     1200, // nominal
	"kb":     1200, // nominal
	"kc":     650,  // nominal
	"kd":     650,  // nominal
	"ke":     1160, // nominal
	"kf":     1160, // nominal
	"kg":     1160, // nominal
	"kge":    1160, // nominal
	"kh":     1160, // nominal
	"lwla":   36.687,
	"ma":     93.7,
	"mb":     390,
	"mc":     97.9,
	"md":     193,  // nominal
	"me":     600,  // nominal
	"meteor": 1200, // nominal
	"mf":     167.3,
	"na":     100,
	"pas":    95.64,
	"poss":   67.19, // nominal
	"pz":     1553,
	"r":      390, // nominal
	"rb":     395.5,
	"rh":     391.3,
	"rl":     290, // nominal
	"ro":     390, // nominal
	"s":      26.3, // nominal
	"sb":     26,   // nominal
	"sh":     26,   // nominal
	"x":      42.3,
	"yb":     55,
}

// PixelScale returns the approximate mosaic pixel scale of a plate series in
// degrees per pixel.
func PixelScale(series string) (float64, bool) {
	arcsecPerMM, ok := plateScaleBySeries[series]
	if !ok {
		return 0, false
	}
	return arcsecPerMM / models.PixelsPerMM / 3600, true
}

// Assumed plate sizes, in pixels, for plates that were never scanned: 17
// inches for the A series and 10 inches for everything else.
const (
	unscannedSizeA     = 39255
	unscannedSizeOther = 23091
)
