package models

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkyPoint_Validate(t *testing.T) {
	tests := []struct {
		name  string
		point SkyPoint
		ok    bool
	}{
		{"origin", SkyPoint{0, 0}, true},
		{"north pole", SkyPoint{123, 90}, true},
		{"south pole", SkyPoint{0, -90}, true},
		{"ra 360", SkyPoint{360, 0}, false},
		{"negative ra", SkyPoint{-1, 0}, false},
		{"dec too high", SkyPoint{10, 90.5}, false},
		{"nan ra", SkyPoint{math.NaN(), 0}, false},
		{"nan dec", SkyPoint{10, math.NaN()}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.point.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRequest))
			}
		})
	}
}

func TestSkyPoint_Separation(t *testing.T) {
	assert.InDelta(t, 0.0, SkyPoint{10, 20}.Separation(SkyPoint{10, 20}), 1e-12)
	assert.InDelta(t, 90.0, SkyPoint{0, 0}.Separation(SkyPoint{0, 90}), 1e-9)
	assert.InDelta(t, 180.0, SkyPoint{0, 0}.Separation(SkyPoint{180, 0}), 1e-9)

	// RA wraps: 359.9 and 0.1 on the equator are 0.2 degrees apart.
	assert.InDelta(t, 0.2, SkyPoint{359.9, 0}.Separation(SkyPoint{0.1, 0}), 1e-9)

	// Near the pole a large RA difference is a small angle.
	sep := SkyPoint{0, 89.9}.Separation(SkyPoint{180, 89.9})
	assert.InDelta(t, 0.2, sep, 1e-9)
}

func TestSkyPoint_Destination(t *testing.T) {
	p := SkyPoint{RA: 10, Dec: 60}

	east := p.Destination(90, 1.0/3600)
	assert.InDelta(t, 1.0/3600, p.Separation(east), 1e-9)
	assert.Greater(t, east.RA, p.RA)

	north := p.Destination(0, 1.0/3600)
	assert.InDelta(t, 60+1.0/3600, north.Dec, 1e-9)
	assert.InDelta(t, 10, north.RA, 1e-9)

	wrapped := SkyPoint{RA: 359.9999, Dec: 0}.Destination(90, 0.001)
	assert.Less(t, wrapped.RA, 1.0)

	// Crossing the pole lands on the opposite meridian.
	over := SkyPoint{RA: 30, Dec: 89.995}.Destination(0, 0.01)
	assert.InDelta(t, 89.995, over.Dec, 1e-6)
	assert.InDelta(t, 210, over.RA, 1e-6)
}

func TestSkyPoint_DestinationNearPole(t *testing.T) {
	const s = 0.01
	for _, dec := range []float64{90, 89.9999999, 89.999, -90, -89.9999999} {
		p := SkyPoint{RA: 40, Dec: dec}
		var pts [4]SkyPoint
		for i, bearing := range []float64{90, 270, 0, 180} {
			pts[i] = p.Destination(bearing, s)
			assert.InDelta(t, s, p.Separation(pts[i]), 1e-9, "dec %v bearing %v", dec, bearing)
		}
		// East and west samples are as far apart as north and south: the
		// compass directions stay orthogonal instead of collapsing.
		assert.InDelta(t, 2*s, pts[0].Separation(pts[1]), 1e-6, "dec %v", dec)
		assert.InDelta(t, 2*s, pts[2].Separation(pts[3]), 1e-6, "dec %v", dec)
		assert.InDelta(t, s*math.Sqrt2, pts[0].Separation(pts[2]), 1e-6, "dec %v", dec)
	}
}

func TestDeltaRA(t *testing.T) {
	assert.InDelta(t, -0.2, DeltaRA(359.9, 0.1), 1e-9)
	assert.InDelta(t, 0.2, DeltaRA(0.1, 359.9), 1e-9)
	assert.InDelta(t, 5.0, DeltaRA(15, 10), 1e-12)
}

func TestNormalizeRA(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeRA(360))
	assert.InDelta(t, 350.0, NormalizeRA(-10), 1e-12)
	assert.InDelta(t, 10.0, NormalizeRA(370), 1e-12)
}

func TestPixelRegion(t *testing.T) {
	r := Rect(10, 20, 30, 60)
	assert.Equal(t, 20, r.Width())
	assert.Equal(t, 40, r.Height())
	assert.False(t, r.Empty())

	assert.True(t, r.ContainsPoint(PixelCoord{X: 9.5, Y: 19.5}))
	assert.False(t, r.ContainsPoint(PixelCoord{X: 29.5, Y: 30}))
	assert.True(t, r.ContainsPoint(PixelCoord{X: 29.49, Y: 59.49}))

	clip := r.Intersect(Rect(0, 0, 15, 100))
	assert.Equal(t, Rect(10, 20, 15, 60), clip)
	assert.True(t, r.Intersect(Rect(100, 100, 200, 200)).Empty())
}

func TestKindAndRetryable(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ErrStorageUnavailable)
	assert.Equal(t, "storage_unavailable", Kind(wrapped))
	assert.True(t, Retryable(wrapped))
	assert.True(t, Retryable(ErrTimeout))
	assert.False(t, Retryable(ErrCorruptSource))
	assert.False(t, Retryable(nil))
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "internal_error", Kind(errors.New("boom")))
	assert.Equal(t, ErrRegionEmpty, KindError("region_empty"))
	assert.Nil(t, KindError("nope"))
}
