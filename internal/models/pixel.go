package models

import "fmt"

// PixelCoord is a 0-based pixel position. Pixel centers sit on integer values,
// so pixel i covers [i-0.5, i+0.5).
type PixelCoord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PixelRegion is the half-open integer rectangle [X0,X1) × [Y0,Y1).
type PixelRegion struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Rect builds a PixelRegion from its corners.
func Rect(x0, y0, x1, y1 int) PixelRegion {
	return PixelRegion{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func (r PixelRegion) Width() int  { return r.X1 - r.X0 }
func (r PixelRegion) Height() int { return r.Y1 - r.Y0 }

// Empty reports whether the region holds no pixels.
func (r PixelRegion) Empty() bool {
	return r.X0 >= r.X1 || r.Y0 >= r.Y1
}

// IsZero reports whether the region is the zero value, which exposure records
// use to mean "the whole image".
func (r PixelRegion) IsZero() bool {
	return r == PixelRegion{}
}

// Intersect returns the overlap of r and s. The result may be Empty.
func (r PixelRegion) Intersect(s PixelRegion) PixelRegion {
	return PixelRegion{
		X0: max(r.X0, s.X0),
		Y0: max(r.Y0, s.Y0),
		X1: min(r.X1, s.X1),
		Y1: min(r.Y1, s.Y1),
	}
}

// ContainsPoint tests a continuous pixel position against the pixel edges of
// the region: [X0-0.5, X1-0.5) × [Y0-0.5, Y1-0.5).
func (r PixelRegion) ContainsPoint(p PixelCoord) bool {
	return p.X >= float64(r.X0)-0.5 && p.X < float64(r.X1)-0.5 &&
		p.Y >= float64(r.Y0)-0.5 && p.Y < float64(r.Y1)-0.5
}

func (r PixelRegion) String() string {
	return fmt.Sprintf("[%d,%d)x[%d,%d)", r.X0, r.X1, r.Y0, r.Y1)
}
