package models

import "fmt"

// Cutout output formats.
const (
	FormatFITS = "fits"
	FormatPNG  = "png"
)

// CutoutRequest asks for a square sub-image of a plate centered on a sky
// position. Exactly one of HalfSizeArcsec and HalfSizePixels must be set.
// Exposure optionally pins the exposure; otherwise it is resolved from the
// center position.
type CutoutRequest struct {
	PlateID        string   `json:"plate_id"`
	Center         SkyPoint `json:"center"`
	HalfSizeArcsec float64  `json:"half_size_arcsec,omitempty"`
	HalfSizePixels int      `json:"half_size_pixels,omitempty"`
	Exposure       *int     `json:"exposure,omitempty"`
	Format         string   `json:"format,omitempty"`
}

// Validate checks the request shape. It does not touch any store.
func (r *CutoutRequest) Validate() error {
	if r.PlateID == "" {
		return fmt.Errorf("plate_id is required: %w", ErrInvalidRequest)
	}
	if err := r.Center.Validate(); err != nil {
		return err
	}
	angular := r.HalfSizeArcsec > 0
	pixels := r.HalfSizePixels > 0
	if angular == pixels {
		return fmt.Errorf("exactly one of half_size_arcsec and half_size_pixels must be positive: %w", ErrInvalidRequest)
	}
	switch r.Format {
	case "", FormatFITS, FormatPNG:
	default:
		return fmt.Errorf("unknown format %q: %w", r.Format, ErrInvalidRequest)
	}
	return nil
}

// CatalogRequest asks for catalog sources within a radius of a sky position.
// A positive Limit truncates the nearest-first result list. An empty RefCat
// selects the default reference catalog.
type CatalogRequest struct {
	Center       SkyPoint `json:"center"`
	RadiusArcsec float64  `json:"radius_arcsec"`
	Limit        int      `json:"limit,omitempty"`
	RefCat       string   `json:"refcat,omitempty"`
}

// Validate checks the request shape.
func (r *CatalogRequest) Validate() error {
	if err := r.Center.Validate(); err != nil {
		return err
	}
	if !(r.RadiusArcsec > 0) {
		return fmt.Errorf("radius_arcsec must be positive: %w", ErrInvalidRequest)
	}
	if r.Limit < 0 {
		return fmt.Errorf("limit must not be negative: %w", ErrInvalidRequest)
	}
	return nil
}

// ExposureRequest asks which exposures of one plate cover a sky position.
type ExposureRequest struct {
	PlateID string   `json:"plate_id"`
	Center  SkyPoint `json:"center"`
}

// Validate checks the request shape.
func (r *ExposureRequest) Validate() error {
	if r.PlateID == "" {
		return fmt.Errorf("plate_id is required: %w", ErrInvalidRequest)
	}
	return r.Center.Validate()
}

// SkyExposureRequest asks which exposures across the whole archive cover a
// sky position.
type SkyExposureRequest struct {
	Center SkyPoint `json:"center"`
}

// CutoutResult is a freshly assembled cutout. Payload holds the encoded image;
// Header lists the output header cards, including the re-anchored mapping.
type CutoutResult struct {
	PlateID     string      `json:"plate_id"`
	Exposure    int         `json:"exposure"`
	Solution    int         `json:"solution"`
	Payload     []byte      `json:"payload"`
	ContentType string      `json:"content_type"`
	Header      []string    `json:"header"`
	Region      PixelRegion `json:"region"`
	Requested   PixelRegion `json:"requested"`
	Clamped     bool        `json:"clamped"`
	Ambiguous   bool        `json:"ambiguous"`
}
