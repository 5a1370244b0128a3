package core

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/wcs"
)

// Size is a cutout half-size: either angular or in pixels.
type Size struct {
	Arcsec float64
	Pixels int
}

// RegionPlan is the pixel rectangle to extract for a cutout.
type RegionPlan struct {
	Center    models.PixelCoord
	Requested models.PixelRegion // before clamping; may extend past the image
	Region    models.PixelRegion
	Clamped   bool
}

// PlanRegion computes the square-on-the-sky (or square-in-pixels) region
// around center, clamped to a width x height image.
//
// For angular sizes the local pixel scale is sampled by projecting points
// a great-circle distance east, west, north and south of the center, so the rectangle follows the mapping's
// local scale and rotation rather than a nominal plate scale. The rectangle
// is the pixel bounding box of the projected sky square.
func PlanRegion(ctx context.Context, m wcs.Mapping, center models.SkyPoint, size Size, width, height int) (RegionPlan, error) {
	c, err := m.ToPixel(center)
	if err != nil {
		if errors.Is(err, models.ErrOutOfDomain) {
			return RegionPlan{}, fmt.Errorf("center %v: %w", center, models.ErrPointNotOnExposure)
		}
		return RegionPlan{}, err
	}

	var hw, hh float64
	switch {
	case size.Pixels > 0:
		hw, hh = float64(size.Pixels), float64(size.Pixels)
	case size.Arcsec > 0:
		hw, hh, err = angularHalfSize(ctx, m, center, c, size.Arcsec/3600)
		if err != nil {
			return RegionPlan{}, err
		}
	default:
		return RegionPlan{}, fmt.Errorf("cutout size must be positive: %w", models.ErrInvalidRequest)
	}

	raw := models.Rect(
		int(math.Round(c.X-hw)), int(math.Round(c.Y-hh)),
		int(math.Round(c.X+hw)), int(math.Round(c.Y+hh)),
	)
	raw.X1 = max(raw.X1, raw.X0+1)
	raw.Y1 = max(raw.Y1, raw.Y0+1)

	region := raw.Intersect(models.Rect(0, 0, width, height))
	if region.Empty() {
		return RegionPlan{}, fmt.Errorf("requested %v in %dx%d image: %w", raw, width, height, models.ErrRegionEmpty)
	}

	return RegionPlan{
		Center:    c,
		Requested: raw,
		Region:    region,
		Clamped:   region != raw,
	}, nil
}

// angularHalfSize returns pixel half-extents covering a sky square of half-size
// s degrees, from the pixel displacements of four points s east, west, north
// and south of the center.
func angularHalfSize(ctx context.Context, m wcs.Mapping, center models.SkyPoint, c models.PixelCoord, s float64) (float64, float64, error) {
	bearings := [4]float64{90, 270, 0, 180}
	var samples [4]models.PixelCoord
	var ok [4]bool

	g, gctx := errgroup.WithContext(ctx)
	for i, bearing := range bearings {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			px, err := m.ToPixel(center.Destination(bearing, s))
			if err != nil {
				if errors.Is(err, models.ErrOutOfDomain) {
					return nil
				}
				return err
			}
			samples[i], ok[i] = px, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	// Displacement per s along each axis, one-sided when a sample fell
	// outside the projection.
	axis := func(plus, minus int) (models.PixelCoord, error) {
		switch {
		case ok[plus] && ok[minus]:
			return models.PixelCoord{
				X: (samples[plus].X - samples[minus].X) / 2,
				Y: (samples[plus].Y - samples[minus].Y) / 2,
			}, nil
		case ok[plus]:
			return models.PixelCoord{X: samples[plus].X - c.X, Y: samples[plus].Y - c.Y}, nil
		case ok[minus]:
			return models.PixelCoord{X: c.X - samples[minus].X, Y: c.Y - samples[minus].Y}, nil
		}
		return models.PixelCoord{}, fmt.Errorf("cutout extends outside the projection: %w", models.ErrPointNotOnExposure)
	}

	east, err := axis(0, 1)
	if err != nil {
		return 0, 0, err
	}
	north, err := axis(2, 3)
	if err != nil {
		return 0, 0, err
	}

	return math.Abs(east.X) + math.Abs(north.X), math.Abs(east.Y) + math.Abs(north.Y), nil
}
