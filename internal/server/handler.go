// Package server implements the HTTP transport of the archive services: JSON
// request decoding, error-kind to status mapping, and middleware.
package server

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/remote"
	"github.com/kilupskalvis/dasch-science/internal/store/catalog"
)

// Service is the query surface served over HTTP.
type Service interface {
	Cutout(ctx context.Context, req models.CutoutRequest) (*models.CutoutResult, error)
	QueryCatalog(ctx context.Context, req models.CatalogRequest) ([]models.CatalogMatch, error)
	QueryExposures(ctx context.Context, req models.ExposureRequest) ([]models.ExposureMatch, error)
	QuerySkyExposures(ctx context.Context, req models.SkyExposureRequest) ([]models.ExposureMatch, error)
	Ready(ctx context.Context) error
}

// ServerConfig holds configurable limits for the server.
type ServerConfig struct {
	MaxRequestBody int64   // bytes, for JSON endpoints
	RatePerSecond  float64 // per-client rate limit, 0 disables
	RateBurst      int
}

// DefaultServerConfig returns reasonable defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxRequestBody: 1024 * 1024,
		RatePerSecond:  20,
		RateBurst:      40,
	}
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(svc Service, cfg *ServerConfig, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	rl := newRateLimiter(cfg.RatePerSecond, cfg.RateBurst)
	h := &handlers{svc: svc, cfg: cfg, logger: logger}

	limited := func(fn http.HandlerFunc) http.Handler {
		return applyMiddleware(fn, rl.middleware)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: plate store unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("POST "+remote.PathCutout, limited(h.cutout))
	mux.Handle("POST "+remote.PathQueryCatalog, limited(h.queryCatalog))
	mux.Handle("POST "+remote.PathQueryExposure, limited(h.queryExposures))
	mux.Handle("POST "+remote.PathQuerySky, limited(h.querySky))

	handler := applyMiddleware(mux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		requestIDMiddleware,
	)

	cleanup := func() {
		rl.Stop()
	}

	return handler, cleanup
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type handlers struct {
	svc    Service
	cfg    *ServerConfig
	logger *slog.Logger
}

func (h *handlers) cutout(w http.ResponseWriter, r *http.Request) {
	var req models.CutoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Cutout(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := &remote.CutoutResponse{CutoutResult: *res}
	if res.Ambiguous {
		resp.Advisories = append(resp.Advisories, models.Kind(models.ErrAmbiguousExposure))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) queryCatalog(w http.ResponseWriter, r *http.Request) {
	var req models.CatalogRequest
	if !h.decode(w, r, &req) {
		return
	}
	matches, err := h.svc.QueryCatalog(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	refcat := req.RefCat
	if refcat == "" {
		refcat = catalog.DefaultRefCat
	}
	writeJSON(w, http.StatusOK, &remote.CatalogResponse{
		RefCat:  refcat,
		Count:   len(matches),
		Matches: nonNil(matches),
	})
}

func (h *handlers) queryExposures(w http.ResponseWriter, r *http.Request) {
	var req models.ExposureRequest
	if !h.decode(w, r, &req) {
		return
	}
	matches, err := h.svc.QueryExposures(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &remote.ExposureResponse{Count: len(matches), Matches: nonNil(matches)})
}

func (h *handlers) querySky(w http.ResponseWriter, r *http.Request) {
	var req models.SkyExposureRequest
	if !h.decode(w, r, &req) {
		return
	}
	matches, err := h.svc.QuerySkyExposures(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &remote.ExposureResponse{Count: len(matches), Matches: nonNil(matches)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// decode reads a JSON body, optionally gzip-encoded. It writes a 400 and
// returns false on failure.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := io.Reader(r.Body)
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, &remote.ErrorResponse{
				Error: models.Kind(models.ErrInvalidRequest), Message: "invalid gzip body",
			})
			return false
		}
		defer gz.Close()
		body = gz
	}
	if err := readJSON(body, h.cfg.MaxRequestBody, v); err != nil {
		writeJSON(w, http.StatusBadRequest, &remote.ErrorResponse{
			Error: models.Kind(models.ErrInvalidRequest), Message: err.Error(),
		})
		return false
	}
	return true
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "invalid_request":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "point_not_on_exposure", "region_empty":
		return http.StatusUnprocessableEntity
	case "storage_unavailable":
		return http.StatusServiceUnavailable
	case "timeout":
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		h.logger.Debug("request canceled", "path", r.URL.Path, "request_id", requestID(r.Context()))
		return
	}

	kind := models.Kind(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "kind", kind, "error", err,
			"request_id", requestID(r.Context()))
		if kind == "internal_error" {
			msg = "internal server error"
		}
	}
	writeJSON(w, status, &remote.ErrorResponse{Error: kind, Message: msg})
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r io.Reader, maxSize int64, v any) error {
	limited := io.LimitReader(r, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
