package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/dasch-science/internal/models"
)

func TestHTTPClient_QueryCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathQueryCatalog, r.URL.Path)

		var req models.CatalogRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 12.5, req.RadiusArcsec)

		json.NewEncoder(w).Encode(&CatalogResponse{
			RefCat: "apass",
			Count:  1,
			Matches: []models.CatalogMatch{
				{Source: models.CatalogSource{ID: "s1", RefNumber: 7}, SeparationArcsec: 2},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL + "/")
	resp, err := c.QueryCatalog(context.Background(), models.CatalogRequest{
		Center: models.SkyPoint{RA: 1, Dec: 2}, RadiusArcsec: 12.5,
	})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, uint64(7), resp.Matches[0].Source.RefNumber)
}

func TestHTTPClient_ErrorKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(&ErrorResponse{Error: "point_not_on_exposure", Message: "plate a00001"})
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).Cutout(context.Background(), models.CutoutRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPointNotOnExposure)

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnprocessableEntity, re.Status)
}

func TestHTTPClient_UndecodableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).QueryExposures(context.Background(), models.ExposureRequest{})
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "unknown", re.Code)
	assert.Equal(t, http.StatusBadGateway, re.Status)
}

func TestHTTPClient_Ready(t *testing.T) {
	var ready atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/readyz", r.URL.Path)
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready"))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	err := c.Ready(context.Background())
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)

	ready.Store(true)
	assert.NoError(t, c.Ready(context.Background()))
}

func TestRetryClient_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(&ErrorResponse{Error: "storage_unavailable", Message: "try later"})
			return
		}
		json.NewEncoder(w).Encode(&ExposureResponse{Count: 0, Matches: []models.ExposureMatch{}})
	}))
	defer srv.Close()

	rc := NewRetryClient(NewHTTPClient(srv.URL), &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
	resp, err := rc.QuerySkyExposures(context.Background(), models.SkyExposureRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Count)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryClient_NoRetryOnRegionEmpty(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(&ErrorResponse{Error: "region_empty", Message: "off the plate"})
	}))
	defer srv.Close()

	rc := NewRetryClient(NewHTTPClient(srv.URL), &RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	_, err := rc.Cutout(context.Background(), models.CutoutRequest{})
	assert.ErrorIs(t, err, models.ErrRegionEmpty)
	assert.Equal(t, int32(1), calls.Load())
}
