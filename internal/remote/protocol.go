// Package remote defines the protocol types and client for talking to a
// dasch-science server.
package remote

import (
	"github.com/kilupskalvis/dasch-science/internal/models"
)

// API paths served by the server.
const (
	PathCutout        = "/api/v1/cutout"
	PathQueryCatalog  = "/api/v1/querycat"
	PathQueryExposure = "/api/v1/queryexps"
	PathQuerySky      = "/api/v1/queryexps/sky"
)

// CutoutResponse carries an assembled cutout. Payload is base64 in JSON.
type CutoutResponse struct {
	models.CutoutResult
	Advisories []string `json:"advisories,omitempty"`
}

// CatalogResponse lists the catalog sources found by a cone search, nearest
// first.
type CatalogResponse struct {
	RefCat  string                `json:"refcat"`
	Count   int                   `json:"count"`
	Matches []models.CatalogMatch `json:"matches"`
}

// ExposureResponse lists the exposures covering a position.
type ExposureResponse struct {
	Count   int                    `json:"count"`
	Matches []models.ExposureMatch `json:"matches"`
}

// ErrorResponse is the structured error format returned by the server. Error
// holds the stable error kind code.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Detail  map[string]string `json:"detail,omitempty"`
}
