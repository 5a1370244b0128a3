package models

// PixelsPerMM is the scanner resolution of the DASCH mosaics.
const PixelsPerMM = 90.9090

// Plate is a digitized glass plate and the exposures recorded on it.
// Plates are read-only reference data.
type Plate struct {
	PlateID       string           `json:"plate_id"`
	Series        string           `json:"series"`
	PlateNumber   int              `json:"plate_number"`
	ImageKey      string           `json:"image_key,omitempty"`
	Width         int              `json:"width,omitempty"`
	Height        int              `json:"height,omitempty"`
	RotationDelta int              `json:"rotation_delta,omitempty"` // degrees between the solution frame and the mosaic on file
	ScanNumber    int              `json:"scan_number"`
	MosaicNumber  int              `json:"mosaic_number"`
	MosaicDate    string           `json:"mosaic_date,omitempty"`
	Exposures     []ExposureRecord `json:"exposures"`
}

// HasMosaic reports whether a scanned image is on file for the plate.
func (p *Plate) HasMosaic() bool {
	return p.ImageKey != "" && p.Width > 0 && p.Height > 0
}

// EffectiveSize returns the image dimensions in the frame of the astrometric
// solutions. A solution computed on an image rotated by 90 or 270 degrees
// relative to the mosaic has its axes swapped.
func (p *Plate) EffectiveSize() (int, int) {
	switch p.RotationDelta {
	case -270, -90, 90, 270:
		return p.Height, p.Width
	}
	return p.Width, p.Height
}

// ExposureRecord is the stored description of one exposure on a plate.
type ExposureRecord struct {
	Number       int         `json:"number"`             // exposure-local sequence number
	Solution     int         `json:"solution"`           // astrometric solution number, -1 if none
	BBox         PixelRegion `json:"bbox"`               // zero value means the whole image
	HeaderGz     []byte      `json:"header_gz,omitempty"` // gzipped ASCII FITS header of the solution
	Center       *SkyPoint   `json:"center,omitempty"`
	DurationMin  *float64    `json:"duration_min,omitempty"`
	CenterSource string      `json:"center_source,omitempty"`
	MidpointDate string      `json:"midpoint_date,omitempty"`
}

// ExposureMatch describes one exposure whose footprint contains a query point.
type ExposureMatch struct {
	PlateID      string     `json:"plate_id"`
	Series       string     `json:"series"`
	PlateNumber  int        `json:"plate_number"`
	ScanNumber   int        `json:"scan_number"`
	MosaicNumber int        `json:"mosaic_number"`
	Exposure     int        `json:"exposure"`
	Solution     int        `json:"solution"`
	Pixel        PixelCoord `json:"pixel"`
	Center       *SkyPoint  `json:"center,omitempty"` // sky position of the exposure's central pixel
	CenterDistCM float64    `json:"center_dist_cm"`
	EdgeDistCM   float64    `json:"edge_dist_cm"`
	DurationMin  *float64   `json:"duration_min,omitempty"`
	WCSSource    string     `json:"wcs_source,omitempty"`
	MosaicDate   string     `json:"mosaic_date,omitempty"`
	Approximate  bool       `json:"approximate"`
}

// CoverageEntry links a coarse sky cell to an exposure whose footprint
// overlaps it.
type CoverageEntry struct {
	PlateID  string `json:"plate_id"`
	Solution int    `json:"solution"`
	Exposure int    `json:"exposure"`
}
