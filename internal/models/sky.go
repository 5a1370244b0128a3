// Package models defines the core data structures shared by the DASCH science
// services: sky and pixel coordinates, plates and their exposures, catalog
// sources, and the query and result records exchanged with the transport layer.
package models

import (
	"fmt"
	"math"
)

// Degree-to-radian conversion factor
const D2R = math.Pi / 180.0

// SkyPoint is a position on the celestial sphere in degrees.
type SkyPoint struct {
	RA  float64 `json:"ra_deg"`
	Dec float64 `json:"dec_deg"`
}

// Validate checks that the point lies in ra ∈ [0,360), dec ∈ [-90,90].
// The comparisons are written so that NaN fails them.
func (p SkyPoint) Validate() error {
	if !(p.RA >= 0 && p.RA < 360) {
		return fmt.Errorf("illegal ra_deg %v: %w", p.RA, ErrInvalidRequest)
	}
	if !(p.Dec >= -90 && p.Dec <= 90) {
		return fmt.Errorf("illegal dec_deg %v: %w", p.Dec, ErrInvalidRequest)
	}
	return nil
}

// Separation returns the great-circle distance to other, in degrees, using the
// haversine formula.
func (p SkyPoint) Separation(other SkyPoint) float64 {
	dDec := (other.Dec - p.Dec) * D2R
	dRA := (other.RA - p.RA) * D2R
	s := math.Sin(dDec/2)*math.Sin(dDec/2) +
		math.Cos(p.Dec*D2R)*math.Cos(other.Dec*D2R)*math.Sin(dRA/2)*math.Sin(dRA/2)
	if s > 1 {
		s = 1
	}
	return 2 * math.Asin(math.Sqrt(s)) / D2R
}

// Destination returns the point reached by travelling distDeg along the great
// circle leaving p at bearingDeg, measured from north through east.
//
// At a pole every direction is south, so bearings are taken relative to the
// meridian p.RA: from the north pole bearing 180 follows p.RA and bearing 90
// follows p.RA+90, and from the south pole bearing 0 follows p.RA. This keeps
// the four compass samples of a pole-centred point orthogonal.
func (p SkyPoint) Destination(bearingDeg, distDeg float64) SkyPoint {
	d := p.Dec * D2R
	if math.Cos(d) < 1e-12 {
		if p.Dec > 0 {
			return SkyPoint{RA: NormalizeRA(p.RA + 180 - bearingDeg), Dec: 90 - distDeg}
		}
		return SkyPoint{RA: NormalizeRA(p.RA + bearingDeg), Dec: -90 + distDeg}
	}

	s := distDeg * D2R
	th := bearingDeg * D2R
	sinDec := math.Sin(d)*math.Cos(s) + math.Cos(d)*math.Sin(s)*math.Cos(th)
	sinDec = math.Max(-1, math.Min(1, sinDec))
	dec := math.Asin(sinDec)
	dRA := math.Atan2(math.Sin(th)*math.Sin(s)*math.Cos(d), math.Cos(s)-math.Sin(d)*sinDec)
	return SkyPoint{RA: NormalizeRA(p.RA + dRA/D2R), Dec: dec / D2R}
}

// NormalizeRA wraps an RA value into [0, 360).
func NormalizeRA(ra float64) float64 {
	ra = math.Mod(ra, 360)
	if ra < 0 {
		ra += 360
	}
	if ra >= 360 {
		ra = 0
	}
	return ra
}

// DeltaRA returns ra1 - ra2 wrapped into [-180, 180).
func DeltaRA(ra1, ra2 float64) float64 {
	d := math.Mod(ra1-ra2, 360)
	if d < -180 {
		d += 360
	} else if d >= 180 {
		d -= 360
	}
	return d
}

func (p SkyPoint) String() string {
	return fmt.Sprintf("(%.6f, %+.6f)", p.RA, p.Dec)
}
