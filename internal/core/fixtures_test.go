package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/wcs"
)

// linearHeader is the stand-in mapping used throughout: pixel (0,0) sits at
// crval and each pixel is 0.001 degrees along RA and Dec.
func linearHeader(t *testing.T, crval models.SkyPoint) *wcs.Header {
	t.Helper()
	h, err := wcs.NewHeader(wcs.ProjLIN, crval, [2]float64{1, 1}, [2][2]float64{{0.001, 0}, {0, 0.001}})
	require.NoError(t, err)
	return h
}

func gzHeader(t *testing.T, h wcs.Anchored) []byte {
	t.Helper()
	b, err := wcs.GzipCards(h.Cards())
	require.NoError(t, err)
	return b
}

// testPlate is a 1000x1000 scanned plate with one linear solution anchored
// at (10, 20).
func testPlate(t *testing.T) *models.Plate {
	t.Helper()
	return &models.Plate{
		PlateID:      "a00001",
		Series:       "a",
		PlateNumber:  1,
		ImageKey:     "a/a00001.fits",
		Width:        1000,
		Height:       1000,
		ScanNumber:   1,
		MosaicNumber: 1,
		Exposures: []models.ExposureRecord{
			{Number: 0, Solution: 0, HeaderGz: gzHeader(t, linearHeader(t, models.SkyPoint{RA: 10, Dec: 20}))},
		},
	}
}

// pinned is a mapping that sends every sky position to the same pixel.
type pinned models.PixelCoord

func (p pinned) ToPixel(models.SkyPoint) (models.PixelCoord, error) { return models.PixelCoord(p), nil }
func (p pinned) ToSky(models.PixelCoord) (models.SkyPoint, error)   { return models.SkyPoint{}, nil }

// nowhere fails every projection.
type nowhere struct{}

func (nowhere) ToPixel(models.SkyPoint) (models.PixelCoord, error) {
	return models.PixelCoord{}, models.ErrOutOfDomain
}
func (nowhere) ToSky(models.PixelCoord) (models.SkyPoint, error) {
	return models.SkyPoint{}, models.ErrOutOfDomain
}
