package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/wcs"
)

// Exposure is an exposure record together with the mapping used to test it.
// BBox lies within the Width x Height frame of the mapping.
type Exposure struct {
	Record      models.ExposureRecord
	Mapping     wcs.Mapping
	BBox        models.PixelRegion
	Width       int
	Height      int
	Approximate bool
}

// Contains reports whether p falls inside the exposure footprint, returning
// its pixel position. Positions outside the projection domain do not match.
func (e *Exposure) Contains(p models.SkyPoint) (models.PixelCoord, bool) {
	px, err := e.Mapping.ToPixel(p)
	if err != nil {
		return models.PixelCoord{}, false
	}
	return px, e.BBox.ContainsPoint(px)
}

// Match is an exposure whose footprint contains a query point.
type Match struct {
	Exposure *Exposure
	Pixel    models.PixelCoord
}

// placeholder reports center values used in the plate database for "unknown".
func placeholder(c *models.SkyPoint) bool {
	return c.RA == 999 || c.RA == -99 || c.Dec == 99 || c.Dec == -99
}

// frameSize returns the dimensions of the solution frame: the mosaic size
// corrected for rotation, or an assumed plate size when nothing was scanned.
func frameSize(plate *models.Plate) (int, int) {
	if plate.HasMosaic() {
		return plate.EffectiveSize()
	}
	if plate.Series == "a" {
		return unscannedSizeA, unscannedSizeA
	}
	return unscannedSizeOther, unscannedSizeOther
}

// LoadExposures builds the usable exposures of a plate, ordered by exposure
// number then solution number. An exposure with a stored solution header uses
// it; otherwise an approximate TAN mapping is centered on the recorded
// exposure center when the series plate scale is known. Exposures with
// neither are left out.
//
// Headers that fail to parse are skipped and reported in the returned error,
// which wraps models.ErrCorruptSource; the other exposures are still returned.
func LoadExposures(plate *models.Plate, logger *slog.Logger) ([]Exposure, error) {
	if logger == nil {
		logger = slog.Default()
	}

	width, height := frameSize(plate)
	naxis := max(width, height)
	scale, hasScale := PixelScale(plate.Series)

	var out []Exposure
	var errs []error

	for _, rec := range plate.Exposures {
		exp := Exposure{Record: rec, Width: width, Height: height}

		switch {
		case len(rec.HeaderGz) > 0:
			cards, err := wcs.ParseGzipHeader(rec.HeaderGz)
			if err == nil {
				exp.Mapping, err = wcs.FromCards(cards)
			}
			if err != nil {
				logger.Warn("skipping exposure with unusable solution",
					"plate", plate.PlateID, "exposure", rec.Number, "solution", rec.Solution, "error", err)
				errs = append(errs, fmt.Errorf("plate %s exposure %d solution %d: %w",
					plate.PlateID, rec.Number, rec.Solution, err))
				continue
			}

		case rec.Center != nil && !placeholder(rec.Center) && hasScale:
			m, err := wcs.Approximate(*rec.Center, scale, naxis, naxis)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			exp.Mapping = m
			exp.Width, exp.Height = naxis, naxis
			exp.Approximate = true

		default:
			logger.Debug("exposure has no usable mapping",
				"plate", plate.PlateID, "exposure", rec.Number, "solution", rec.Solution)
			continue
		}

		frame := models.Rect(0, 0, exp.Width, exp.Height)
		if rec.BBox.IsZero() || exp.Approximate {
			exp.BBox = frame
		} else {
			exp.BBox = rec.BBox.Intersect(frame)
		}
		out = append(out, exp)
	}

	slices.SortStableFunc(out, func(a, b Exposure) int {
		if a.Record.Number != b.Record.Number {
			return a.Record.Number - b.Record.Number
		}
		return a.Record.Solution - b.Record.Solution
	})

	return out, errors.Join(errs...)
}

// Resolve returns the exposures containing p, in exposure order. An empty
// result is a normal outcome.
func Resolve(exposures []Exposure, p models.SkyPoint) []Match {
	var matches []Match
	for i := range exposures {
		if px, ok := exposures[i].Contains(p); ok {
			matches = append(matches, Match{Exposure: &exposures[i], Pixel: px})
		}
	}
	return matches
}

// SelectOne picks the first match. ambiguous is set when more than one
// exposure matched.
func SelectOne(matches []Match) (Match, bool, error) {
	if len(matches) == 0 {
		return Match{}, false, models.ErrPointNotOnExposure
	}
	return matches[0], len(matches) > 1, nil
}

// Describe fills in the reporting fields for a match: the sky position of the
// frame center and the distances from the point to that center and to the
// nearest frame edge, in centimeters on the plate.
func Describe(plate *models.Plate, m Match) models.ExposureMatch {
	e := m.Exposure
	out := models.ExposureMatch{
		PlateID:      plate.PlateID,
		Series:       plate.Series,
		PlateNumber:  plate.PlateNumber,
		ScanNumber:   -1,
		MosaicNumber: -1,
		Exposure:     e.Record.Number,
		Solution:     e.Record.Solution,
		Pixel:        m.Pixel,
		DurationMin:  e.Record.DurationMin,
		WCSSource:    e.Record.CenterSource,
		Approximate:  e.Approximate,
	}
	if plate.HasMosaic() {
		out.ScanNumber = plate.ScanNumber
		out.MosaicNumber = plate.MosaicNumber
		out.MosaicDate = plate.MosaicDate
	}

	w, h := float64(e.Width), float64(e.Height)
	cx, cy := 0.5*(w-1), 0.5*(h-1)
	if c, err := e.Mapping.ToSky(models.PixelCoord{X: cx, Y: cy}); err == nil {
		out.Center = &c
	}

	const pxPerCM = 10 * models.PixelsPerMM
	x, y := m.Pixel.X, m.Pixel.Y
	out.CenterDistCM = math.Hypot(x-cx, y-cy) / pxPerCM
	out.EdgeDistCM = min(x+0.5, y+0.5, w-(0.5+x), h-(0.5+y)) / pxPerCM
	return out
}
