package imagestore

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"slices"

	"github.com/disintegration/imaging"
)

// Quicklook stretch limits, as percentiles of the finite pixel values.
const (
	stretchLow  = 0.005
	stretchHigh = 0.995
)

// EncodePNG renders pixels as an 8-bit grayscale PNG with a linear
// percentile stretch. FITS rows run bottom-up, so the image is flipped to put
// north at the top.
func EncodePNG(w io.Writer, p *Pixels) error {
	n := p.Width * p.Height
	if n == 0 {
		return fmt.Errorf("empty image")
	}

	values := make([]float64, n)
	finite := make([]float64, 0, n)
	for i := range n {
		v := p.Value(i)
		values[i] = v
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}

	lo, hi := 0.0, 1.0
	if len(finite) > 0 {
		slices.Sort(finite)
		lo = finite[int(stretchLow*float64(len(finite)-1))]
		hi = finite[int(stretchHigh*float64(len(finite)-1))]
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	img := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	for y := range p.Height {
		for x := range p.Width {
			v := values[y*p.Width+x]
			var g uint8
			switch {
			case math.IsNaN(v):
				g = 0
			case v >= hi:
				g = 255
			case v > lo:
				g = uint8(255 * (v - lo) / span)
			}
			img.SetGray(x, y, color.Gray{Y: g})
		}
	}

	return imaging.Encode(w, imaging.FlipV(img), imaging.PNG)
}
