package models

// CatalogSource is one entry of a reference catalog. Attributes carries the
// photometry and flag columns through untouched.
type CatalogSource struct {
	ID         string            `json:"id"`
	RefNumber  uint64            `json:"ref_number"`
	Position   SkyPoint          `json:"position"`
	Cell       uint64            `json:"cell"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// CatalogMatch is a catalog source found by a positional query, with its
// offsets from the query center.
type CatalogMatch struct {
	Source           CatalogSource `json:"source"`
	SeparationArcsec float64       `json:"separation_arcsec"`
	DRAArcsec        float64       `json:"dra_arcsec"`  // (query - source) RA offset on the sky
	DDecArcsec       float64       `json:"ddec_arcsec"` // query - source declination
}
