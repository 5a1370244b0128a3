// Package skybin partitions the sphere into GSC-style cells: declination
// bands of fixed height, each split into as many equal RA bins as fit at the
// band's mid declination. Cells are numbered contiguously band by band, so the
// RA bins of one band form a single key range.
package skybin

import (
	"math"
	"sort"

	"github.com/kilupskalvis/dasch-science/internal/models"
)

// TotalGSC64 is the number of cells in the 1/64 degree binning.
const TotalGSC64 = 168966386

type band struct {
	start uint64
	count uint64
}

// Binning is an immutable tessellation of the sphere.
type Binning struct {
	size  float64
	bands []band
	total uint64
}

// CellRange is the half-open cell interval [Lo, Hi).
type CellRange struct {
	Lo uint64 `json:"lo"`
	Hi uint64 `json:"hi"`
}

// Len returns the number of cells in the range.
func (r CellRange) Len() uint64 { return r.Hi - r.Lo }

// New64 returns the 1/64 degree binning used to partition the catalog.
func New64() *Binning {
	return New(1.0 / 64)
}

// New1 returns the one degree binning used by the plate coverage index.
func New1() *Binning {
	return New(1)
}

// New builds a binning with the given band height in degrees. The height
// should divide 180 evenly.
func New(sizeDeg float64) *Binning {
	n := int(math.Round(180 / sizeDeg))
	b := &Binning{size: sizeDeg, bands: make([]band, n)}
	for i := range n {
		dec := float64(i)*sizeDeg - 90
		count := uint64(360 / sizeDeg * math.Cos((dec+sizeDeg/2)*models.D2R))
		b.bands[i] = band{start: b.total, count: count}
		b.total += count
	}
	return b
}

// Size returns the band height in degrees.
func (b *Binning) Size() float64 { return b.size }

// Bands returns the number of declination bands.
func (b *Binning) Bands() int { return len(b.bands) }

// Total returns the number of cells.
func (b *Binning) Total() uint64 { return b.total }

// DecBin returns the band containing dec. Values outside [-90, 90] are
// clamped; dec = 90 belongs to the last band.
func (b *Binning) DecBin(dec float64) int {
	if dec <= -90 {
		return 0
	}
	bin := int((dec + 90) / b.size)
	if bin >= len(b.bands) {
		bin = len(b.bands) - 1
	}
	return bin
}

// RABin returns the cell number of ra within band decBin.
func (b *Binning) RABin(decBin int, ra float64) uint64 {
	bd := b.bands[decBin]
	delta := uint64(models.NormalizeRA(ra) * float64(bd.count) / 360)
	if delta >= bd.count {
		delta = bd.count - 1
	}
	return bd.start + delta
}

// Cell returns the cell containing p.
func (b *Binning) Cell(p models.SkyPoint) uint64 {
	return b.RABin(b.DecBin(p.Dec), p.RA)
}

// Ring returns every cell of band decBin.
func (b *Binning) Ring(decBin int) CellRange {
	bd := b.bands[decBin]
	return CellRange{Lo: bd.start, Hi: bd.start + bd.count}
}

// raSlack widens RA intervals slightly so rounding never drops an edge cell.
const raSlack = 1e-9

// Cover returns sorted, non-overlapping cell ranges covering every point
// within radiusDeg of center. It may include cells outside the disk but never
// omits a cell that intersects it.
func (b *Binning) Cover(center models.SkyPoint, radiusDeg float64) []CellRange {
	lo := b.DecBin(max(center.Dec-radiusDeg, -90))
	hi := b.DecBin(min(center.Dec+radiusDeg, 90))

	// Largest RA offset of any point in the disk. The disk reaches a pole
	// when the offset is undefined.
	halfRA := 180.0
	cosDec := math.Cos(center.Dec * models.D2R)
	if s := math.Sin(radiusDeg * models.D2R); radiusDeg < 90 && s < cosDec {
		halfRA = math.Asin(s/cosDec)/models.D2R + raSlack
	}

	var out []CellRange
	for i := lo; i <= hi; i++ {
		if halfRA >= 180 {
			out = append(out, b.Ring(i))
			continue
		}
		out = append(out, b.raRanges(i, center.RA-halfRA, center.RA+halfRA)...)
	}
	return merge(out)
}

// raRanges returns the cells of band i covering RA [ra0, ra1], splitting the
// interval where it crosses RA 0.
func (b *Binning) raRanges(i int, ra0, ra1 float64) []CellRange {
	if ra1-ra0 >= 360 {
		return []CellRange{b.Ring(i)}
	}
	ring := b.Ring(i)
	start := models.NormalizeRA(ra0)
	end := models.NormalizeRA(ra1)
	first := b.RABin(i, start)
	last := b.RABin(i, end)
	if start <= end {
		return []CellRange{{Lo: first, Hi: last + 1}}
	}
	return []CellRange{
		{Lo: ring.Lo, Hi: last + 1},
		{Lo: first, Hi: ring.Hi},
	}
}

func merge(ranges []CellRange) []CellRange {
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Lo < ranges[j].Lo })
	out := ranges[:1]
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		if r.Lo <= last.Hi {
			last.Hi = max(last.Hi, r.Hi)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Count returns the number of cells in ranges.
func Count(ranges []CellRange) uint64 {
	var n uint64
	for _, r := range ranges {
		n += r.Len()
	}
	return n
}
