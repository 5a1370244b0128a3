package core

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/wcs"
)

func TestPlanRegion_Pixels(t *testing.T) {
	m := linearHeader(t, models.SkyPoint{RA: 10, Dec: 20})
	center := models.SkyPoint{RA: 10.5, Dec: 20.5}

	tests := []struct {
		name    string
		half    int
		want    models.PixelRegion
		raw     models.PixelRegion
		clamped bool
	}{
		{"inside", 50, models.Rect(450, 450, 550, 550), models.Rect(450, 450, 550, 550), false},
		{"larger than plate", 600, models.Rect(0, 0, 1000, 1000), models.Rect(-100, -100, 1100, 1100), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanRegion(context.Background(), m, center, Size{Pixels: tt.half}, 1000, 1000)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Region)
			assert.Equal(t, tt.raw, plan.Requested)
			assert.Equal(t, tt.clamped, plan.Clamped)
			assert.InDelta(t, 500, plan.Center.X, 1e-6)
		})
	}
}

func TestPlanRegion_Angular(t *testing.T) {
	m := linearHeader(t, models.SkyPoint{RA: 10, Dec: 20})
	center := models.SkyPoint{RA: 10.5, Dec: 20.5}

	// 36" is 0.01 deg: 10 px in Dec and 10/cos(20.5 deg) = 10.68 px in RA
	// for the linear stand-in.
	plan, err := PlanRegion(context.Background(), m, center, Size{Arcsec: 36}, 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, models.Rect(489, 490, 511, 510), plan.Region)
	assert.False(t, plan.Clamped)
}

func TestPlanRegion_RotatedTAN(t *testing.T) {
	// 45 degree rotation: the bounding box of the sky square grows by sqrt(2).
	const s = 0.001
	c := s / 1.4142135623730951
	h, err := wcs.NewHeader(wcs.ProjTAN, models.SkyPoint{RA: 200, Dec: 0},
		[2]float64{501, 501}, [2][2]float64{{-c, c}, {c, c}})
	require.NoError(t, err)

	plan, err := PlanRegion(context.Background(), h, models.SkyPoint{RA: 200, Dec: 0}, Size{Arcsec: 36}, 1000, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 500, plan.Center.X, 1e-6)
	assert.Equal(t, 28, plan.Region.Width())
	assert.Equal(t, 28, plan.Region.Height())
}

func TestPlanRegion_NearPole(t *testing.T) {
	// TAN solution centred on the north celestial pole, 3.6"/px.
	h, err := wcs.NewHeader(wcs.ProjTAN, models.SkyPoint{RA: 0, Dec: 90},
		[2]float64{501, 501}, [2][2]float64{{0.001, 0}, {0, 0.001}})
	require.NoError(t, err)

	for _, dec := range []float64{90, 89.9999999, 89.999} {
		for _, ra := range []float64{0, 123.4} {
			// Local north turns with RA around the pole, so the 20 px sky
			// square's bounding box grows with the rotation.
			a := ra * models.D2R
			want := 20 * (math.Abs(math.Cos(a)) + math.Abs(math.Sin(a)))

			center := models.SkyPoint{RA: ra, Dec: dec}
			plan, err := PlanRegion(context.Background(), h, center, Size{Arcsec: 36}, 1000, 1000)
			require.NoError(t, err, "center %v", center)
			assert.InDelta(t, want, plan.Region.Width(), 1, "center %v", center)
			assert.InDelta(t, want, plan.Region.Height(), 1, "center %v", center)
			assert.False(t, plan.Clamped, "center %v", center)
		}
	}
}

func TestPlanRegion_Errors(t *testing.T) {
	m := linearHeader(t, models.SkyPoint{RA: 10, Dec: 20})
	ctx := context.Background()

	_, err := PlanRegion(ctx, m, models.SkyPoint{RA: 5, Dec: 10}, Size{Pixels: 10}, 1000, 1000)
	assert.ErrorIs(t, err, models.ErrRegionEmpty)

	_, err = PlanRegion(ctx, nowhere{}, models.SkyPoint{RA: 5, Dec: 10}, Size{Pixels: 10}, 1000, 1000)
	assert.ErrorIs(t, err, models.ErrPointNotOnExposure)

	_, err = PlanRegion(ctx, m, models.SkyPoint{RA: 10.5, Dec: 20.5}, Size{}, 1000, 1000)
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestPlanRegion_TouchesEdge(t *testing.T) {
	m := linearHeader(t, models.SkyPoint{RA: 10, Dec: 20})

	// Center on pixel (995, 5): a 20 px box is cut on two sides.
	plan, err := PlanRegion(context.Background(), m, models.SkyPoint{RA: 10.995, Dec: 20.005}, Size{Pixels: 10}, 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, models.Rect(985, 0, 1000, 15), plan.Region)
	assert.Equal(t, models.Rect(985, -5, 1005, 15), plan.Requested)
	assert.True(t, plan.Clamped)
}
