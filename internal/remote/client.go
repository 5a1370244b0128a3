package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kilupskalvis/dasch-science/internal/models"
)

// Client defines the contract for querying a dasch-science server.
type Client interface {
	Cutout(ctx context.Context, req models.CutoutRequest) (*CutoutResponse, error)
	QueryCatalog(ctx context.Context, req models.CatalogRequest) (*CatalogResponse, error)
	QueryExposures(ctx context.Context, req models.ExposureRequest) (*ExposureResponse, error)
	QuerySkyExposures(ctx context.Context, req models.SkyExposureRequest) (*ExposureResponse, error)
	Ready(ctx context.Context) error
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTP-based client.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body io.Reader
	headers := map[string]string{"Content-Type": "application/json"}

	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, path, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// Cutout requests a cutout image.
func (c *HTTPClient) Cutout(ctx context.Context, req models.CutoutRequest) (*CutoutResponse, error) {
	var resp CutoutResponse
	if err := c.doJSON(ctx, http.MethodPost, PathCutout, &req, &resp); err != nil {
		return nil, fmt.Errorf("cutout: %w", err)
	}
	return &resp, nil
}

// QueryCatalog runs a catalog cone search.
func (c *HTTPClient) QueryCatalog(ctx context.Context, req models.CatalogRequest) (*CatalogResponse, error) {
	var resp CatalogResponse
	if err := c.doJSON(ctx, http.MethodPost, PathQueryCatalog, &req, &resp); err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	return &resp, nil
}

// QueryExposures lists the exposures of one plate covering a position.
func (c *HTTPClient) QueryExposures(ctx context.Context, req models.ExposureRequest) (*ExposureResponse, error) {
	var resp ExposureResponse
	if err := c.doJSON(ctx, http.MethodPost, PathQueryExposure, &req, &resp); err != nil {
		return nil, fmt.Errorf("query exposures: %w", err)
	}
	return &resp, nil
}

// QuerySkyExposures lists the exposures of all plates covering a position.
func (c *HTTPClient) QuerySkyExposures(ctx context.Context, req models.SkyExposureRequest) (*ExposureResponse, error) {
	var resp ExposureResponse
	if err := c.doJSON(ctx, http.MethodPost, PathQuerySky, &req, &resp); err != nil {
		return nil, fmt.Errorf("query sky exposures: %w", err)
	}
	return &resp, nil
}

// Ready probes the server's readiness endpoint.
func (c *HTTPClient) Ready(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/readyz", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &RemoteError{Code: "storage_unavailable", Message: strings.TrimSpace(string(msg)), Status: resp.StatusCode}
	}
	return nil
}

// RemoteError represents a structured error from the server. It unwraps to
// the error kind named by Code, so callers can match it with errors.Is.
type RemoteError struct {
	Code    string
	Message string
	Status  int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%d): %s: %s", e.Status, e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return models.KindError(e.Code)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return &RemoteError{
			Code:    "unknown",
			Message: fmt.Sprintf("HTTP %d", resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}

	return &RemoteError{
		Code:    errResp.Error,
		Message: errResp.Message,
		Status:  resp.StatusCode,
	}
}
