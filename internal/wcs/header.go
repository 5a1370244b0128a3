// Package wcs maps between sky positions and plate pixel positions.
//
// The only concrete mapping is Header, a FITS world coordinate system with a
// gnomonic (TAN) or linear (LIN) projection. TPV solutions are accepted and
// evaluated as plain TAN; their distortion terms are ignored.
package wcs

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"

	"github.com/kilupskalvis/dasch-science/internal/models"
)

// Mapping converts between sky and 0-based pixel coordinates. Implementations
// are pure and safe for concurrent use. Neither direction clamps to image
// bounds; positions the projection cannot represent yield ErrOutOfDomain.
type Mapping interface {
	ToPixel(p models.SkyPoint) (models.PixelCoord, error)
	ToSky(p models.PixelCoord) (models.SkyPoint, error)
}

// Anchored is a Mapping whose pixel origin can be moved and which can be
// written back out as header cards.
type Anchored interface {
	Mapping
	Translate(dx, dy float64) Anchored
	Cards() []Card
}

// Projection codes.
const (
	ProjTAN = "TAN"
	ProjLIN = "LIN"
)

// Header is a FITS celestial WCS. CRPix is in FITS 1-based pixel units;
// all methods take and return 0-based PixelCoord values.
type Header struct {
	Proj  string
	CRVal models.SkyPoint
	CRPix [2]float64
	CD    [2][2]float64

	fwd f64.Aff3 // 0-based pixel -> intermediate world (degrees)
	inv f64.Aff3
}

// NewHeader builds a Header and precomputes its affine transforms. A singular
// CD matrix is reported as ErrCorruptSource.
func NewHeader(proj string, crval models.SkyPoint, crpix [2]float64, cd [2][2]float64) (*Header, error) {
	h := &Header{Proj: proj, CRVal: crval, CRPix: crpix, CD: cd}
	if err := h.init(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Header) init() error {
	switch h.Proj {
	case ProjTAN, ProjLIN:
	default:
		return fmt.Errorf("unsupported projection %q: %w", h.Proj, models.ErrCorruptSource)
	}

	ox := h.CRPix[0] - 1
	oy := h.CRPix[1] - 1
	h.fwd = f64.Aff3{
		h.CD[0][0], h.CD[0][1], -(h.CD[0][0]*ox + h.CD[0][1]*oy),
		h.CD[1][0], h.CD[1][1], -(h.CD[1][0]*ox + h.CD[1][1]*oy),
	}

	m := mat.NewDense(3, 3, []float64{
		h.fwd[0], h.fwd[1], h.fwd[2],
		h.fwd[3], h.fwd[4], h.fwd[5],
		0, 0, 1,
	})
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		// Ill-conditioned but finite inverses are still usable.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 0) {
			return fmt.Errorf("singular CD matrix: %w", models.ErrCorruptSource)
		}
	}
	h.inv = f64.Aff3{
		inv.At(0, 0), inv.At(0, 1), inv.At(0, 2),
		inv.At(1, 0), inv.At(1, 1), inv.At(1, 2),
	}
	return nil
}

func apply(a f64.Aff3, x, y float64) (float64, float64) {
	return a[0]*x + a[1]*y + a[2], a[3]*x + a[4]*y + a[5]
}

// ToPixel projects a sky position onto the plate.
func (h *Header) ToPixel(p models.SkyPoint) (models.PixelCoord, error) {
	var xi, eta float64

	switch h.Proj {
	case ProjLIN:
		xi = models.DeltaRA(p.RA, h.CRVal.RA)
		eta = p.Dec - h.CRVal.Dec
	default:
		a := p.RA * models.D2R
		d := p.Dec * models.D2R
		a0 := h.CRVal.RA * models.D2R
		d0 := h.CRVal.Dec * models.D2R

		cosc := math.Sin(d0)*math.Sin(d) + math.Cos(d0)*math.Cos(d)*math.Cos(a-a0)
		if !(cosc > 0) {
			return models.PixelCoord{}, models.ErrOutOfDomain
		}
		xi = math.Cos(d) * math.Sin(a-a0) / cosc / models.D2R
		eta = (math.Cos(d0)*math.Sin(d) - math.Sin(d0)*math.Cos(d)*math.Cos(a-a0)) / cosc / models.D2R
	}

	x, y := apply(h.inv, xi, eta)
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return models.PixelCoord{}, models.ErrOutOfDomain
	}
	return models.PixelCoord{X: x, Y: y}, nil
}

// ToSky returns the sky position of a pixel position.
func (h *Header) ToSky(p models.PixelCoord) (models.SkyPoint, error) {
	xi, eta := apply(h.fwd, p.X, p.Y)

	var ra, dec float64
	switch h.Proj {
	case ProjLIN:
		ra = h.CRVal.RA + xi
		dec = h.CRVal.Dec + eta
		if dec > 90 || dec < -90 {
			return models.SkyPoint{}, models.ErrOutOfDomain
		}
	default:
		x := xi * models.D2R
		y := eta * models.D2R
		a0 := h.CRVal.RA * models.D2R
		d0 := h.CRVal.Dec * models.D2R

		den := math.Cos(d0) - y*math.Sin(d0)
		ra = (a0 + math.Atan2(x, den)) / models.D2R
		dec = math.Atan2(math.Sin(d0)+y*math.Cos(d0), math.Hypot(x, den)) / models.D2R
	}

	if math.IsNaN(ra) || math.IsNaN(dec) {
		return models.SkyPoint{}, models.ErrOutOfDomain
	}
	return models.SkyPoint{RA: models.NormalizeRA(ra), Dec: dec}, nil
}

// Translate returns a copy whose pixel origin is moved to (dx, dy) of the
// current frame, so that ToPixel results shift by (-dx, -dy).
func (h *Header) Translate(dx, dy float64) Anchored {
	out := &Header{
		Proj:  h.Proj,
		CRVal: h.CRVal,
		CRPix: [2]float64{h.CRPix[0] - dx, h.CRPix[1] - dy},
		CD:    h.CD,
	}
	// The CD matrix was already checked; only the offsets change.
	out.fwd = h.fwd
	out.fwd[2] = h.fwd[2] + h.fwd[0]*dx + h.fwd[1]*dy
	out.fwd[5] = h.fwd[5] + h.fwd[3]*dx + h.fwd[4]*dy
	out.inv = h.inv
	out.inv[2] = h.inv[2] - dx
	out.inv[5] = h.inv[5] - dy
	return out
}

// Cards renders the mapping as FITS header cards.
func (h *Header) Cards() []Card {
	ra, dec := "RA---"+h.Proj, "DEC--"+h.Proj
	return []Card{
		StringCard("CTYPE1", ra, ""),
		StringCard("CTYPE2", dec, ""),
		FloatCard("CRVAL1", h.CRVal.RA, "RA at reference pixel"),
		FloatCard("CRVAL2", h.CRVal.Dec, "Dec at reference pixel"),
		FloatCard("CRPIX1", h.CRPix[0], "reference pixel (1-based)"),
		FloatCard("CRPIX2", h.CRPix[1], "reference pixel (1-based)"),
		FloatCard("CD1_1", h.CD[0][0], ""),
		FloatCard("CD1_2", h.CD[0][1], ""),
		FloatCard("CD2_1", h.CD[1][0], ""),
		FloatCard("CD2_2", h.CD[1][1], ""),
	}
}

// FromCards builds a Header from parsed header cards. The CD matrix is taken
// from CDi_j when present, else from CDELTi with PCi_j or CROTA2.
func FromCards(cards []Card) (*Header, error) {
	get := func(key string) (float64, bool, error) {
		c, ok := Lookup(cards, key)
		if !ok {
			return 0, false, nil
		}
		v, err := c.Float()
		if err != nil {
			return 0, true, fmt.Errorf("%v: %w", err, models.ErrCorruptSource)
		}
		return v, true, nil
	}
	need := func(key string) (float64, error) {
		v, ok, err := get(key)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("missing keyword %s: %w", key, models.ErrCorruptSource)
		}
		return v, nil
	}

	c1, ok1 := Lookup(cards, "CTYPE1")
	c2, ok2 := Lookup(cards, "CTYPE2")
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("missing CTYPE keywords: %w", models.ErrCorruptSource)
	}
	proj, err := projection(c1.Str(), c2.Str())
	if err != nil {
		return nil, err
	}

	var crval [2]float64
	var crpix [2]float64
	for i, key := range []string{"CRVAL1", "CRVAL2", "CRPIX1", "CRPIX2"} {
		v, err := need(key)
		if err != nil {
			return nil, err
		}
		if i < 2 {
			crval[i] = v
		} else {
			crpix[i-2] = v
		}
	}

	cd, err := cdMatrix(get)
	if err != nil {
		return nil, err
	}

	return NewHeader(proj, models.SkyPoint{RA: crval[0], Dec: crval[1]}, crpix, cd)
}

func projection(ctype1, ctype2 string) (string, error) {
	if !strings.HasPrefix(ctype1, "RA") || !strings.HasPrefix(ctype2, "DEC") {
		return "", fmt.Errorf("unsupported axes %q/%q: %w", ctype1, ctype2, models.ErrCorruptSource)
	}
	code := func(ctype string) string {
		if len(ctype) < 8 {
			return ""
		}
		return ctype[5:8]
	}
	p1, p2 := code(ctype1), code(ctype2)
	if p1 != p2 {
		return "", fmt.Errorf("mismatched projections %q/%q: %w", ctype1, ctype2, models.ErrCorruptSource)
	}
	switch p1 {
	case "TAN", "TPV":
		return ProjTAN, nil
	case "", "LIN":
		return ProjLIN, nil
	}
	return "", fmt.Errorf("unsupported projection %q: %w", p1, models.ErrCorruptSource)
}

func cdMatrix(get func(string) (float64, bool, error)) ([2][2]float64, error) {
	var cd [2][2]float64
	keys := [2][2]string{{"CD1_1", "CD1_2"}, {"CD2_1", "CD2_2"}}
	found := false
	for i := range 2 {
		for j := range 2 {
			v, ok, err := get(keys[i][j])
			if err != nil {
				return cd, err
			}
			cd[i][j] = v
			found = found || ok
		}
	}
	if found {
		return cd, nil
	}

	cdelt1, ok1, err := get("CDELT1")
	if err != nil {
		return cd, err
	}
	cdelt2, ok2, err := get("CDELT2")
	if err != nil {
		return cd, err
	}
	if !ok1 || !ok2 {
		return cd, fmt.Errorf("missing CD or CDELT keywords: %w", models.ErrCorruptSource)
	}

	pcKeys := [2][2]string{{"PC1_1", "PC1_2"}, {"PC2_1", "PC2_2"}}
	pc := [2][2]float64{{1, 0}, {0, 1}}
	hasPC := false
	for i := range 2 {
		for j := range 2 {
			v, ok, err := get(pcKeys[i][j])
			if err != nil {
				return cd, err
			}
			if ok {
				pc[i][j] = v
				hasPC = true
			}
		}
	}
	if !hasPC {
		rot, _, err := get("CROTA2")
		if err != nil {
			return cd, err
		}
		s, c := math.Sincos(rot * models.D2R)
		pc = [2][2]float64{{c, -s * cdelt2 / cdelt1}, {s * cdelt1 / cdelt2, c}}
	}

	cdelt := [2]float64{cdelt1, cdelt2}
	for i := range 2 {
		for j := range 2 {
			cd[i][j] = cdelt[i] * pc[i][j]
		}
	}
	return cd, nil
}

// Approximate builds a TAN mapping centered on a square-pixel image of the
// given size, with north up and east to the left.
func Approximate(center models.SkyPoint, pixelScaleDeg float64, width, height int) (*Header, error) {
	if !(pixelScaleDeg > 0) {
		return nil, fmt.Errorf("illegal pixel scale %v: %w", pixelScaleDeg, models.ErrCorruptSource)
	}
	return NewHeader(ProjTAN, center,
		[2]float64{0.5 * float64(width+1), 0.5 * float64(height+1)},
		[2][2]float64{{-pixelScaleDeg, 0}, {0, pixelScaleDeg}},
	)
}

// Translate moves the pixel origin of any mapping to (dx, dy). Anchored
// mappings are shifted natively; others are wrapped.
func Translate(m Mapping, dx, dy float64) Mapping {
	if a, ok := m.(Anchored); ok {
		return a.Translate(dx, dy)
	}
	return shifted{m: m, dx: dx, dy: dy}
}

type shifted struct {
	m      Mapping
	dx, dy float64
}

func (s shifted) ToPixel(p models.SkyPoint) (models.PixelCoord, error) {
	px, err := s.m.ToPixel(p)
	if err != nil {
		return px, err
	}
	return models.PixelCoord{X: px.X - s.dx, Y: px.Y - s.dy}, nil
}

func (s shifted) ToSky(p models.PixelCoord) (models.SkyPoint, error) {
	return s.m.ToSky(models.PixelCoord{X: p.X + s.dx, Y: p.Y + s.dy})
}
