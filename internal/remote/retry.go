package remote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/kilupskalvis/dasch-science/internal/models"
)

// RetryConfig configures retry behavior for transient errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryClient wraps a Client with automatic retry on transient errors.
type RetryClient struct {
	inner  Client
	config *RetryConfig
}

// NewRetryClient creates a RetryClient that wraps the given Client.
func NewRetryClient(inner Client, cfg *RetryConfig) *RetryClient {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryClient{inner: inner, config: cfg}
}

// isTransient returns true for errors that are worth retrying: an unavailable
// store, a server-side timeout, rate limiting, and network failures.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var re *RemoteError
	if errors.As(err, &re) {
		switch re.Status {
		case http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
			return true
		}
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true // network errors are transient
}

// backoff computes the delay for the given attempt with jitter.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	base := float64(rc.config.InitialBackoff) * math.Pow(2, float64(attempt))
	if base > float64(rc.config.MaxBackoff) {
		base = float64(rc.config.MaxBackoff)
	}
	jitter := base * rc.config.JitterFraction * (rand.Float64()*2 - 1) // +/- jitter
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry executes fn with retry logic. Only retries transient errors.
func (rc *RetryClient) retry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= rc.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt < rc.config.MaxRetries {
			d := rc.backoff(attempt)
			if err := sleep(ctx, d); err != nil {
				return fmt.Errorf("%s: %w (retry cancelled)", operation, lastErr)
			}
		}
	}
	return fmt.Errorf("%s: %w (after %d retries)", operation, lastErr, rc.config.MaxRetries)
}

// --- Delegate all Client methods through retry logic ---

func (rc *RetryClient) Cutout(ctx context.Context, req models.CutoutRequest) (resp *CutoutResponse, err error) {
	err = rc.retry(ctx, "cutout", func() error {
		resp, err = rc.inner.Cutout(ctx, req)
		return err
	})
	return
}

func (rc *RetryClient) QueryCatalog(ctx context.Context, req models.CatalogRequest) (resp *CatalogResponse, err error) {
	err = rc.retry(ctx, "query catalog", func() error {
		resp, err = rc.inner.QueryCatalog(ctx, req)
		return err
	})
	return
}

func (rc *RetryClient) QueryExposures(ctx context.Context, req models.ExposureRequest) (resp *ExposureResponse, err error) {
	err = rc.retry(ctx, "query exposures", func() error {
		resp, err = rc.inner.QueryExposures(ctx, req)
		return err
	})
	return
}

func (rc *RetryClient) QuerySkyExposures(ctx context.Context, req models.SkyExposureRequest) (resp *ExposureResponse, err error) {
	err = rc.retry(ctx, "query sky exposures", func() error {
		resp, err = rc.inner.QuerySkyExposures(ctx, req)
		return err
	})
	return
}

func (rc *RetryClient) Ready(ctx context.Context) error {
	// Readiness is a probe; the caller decides whether to wait.
	return rc.inner.Ready(ctx)
}
