// Package config manages the archive configuration: where the plate,
// catalog and image stores live, how the service logs, and its query limits.
// Values come from a TOML file, then DASCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/kilupskalvis/dasch-science/internal/store/catalog"
)

const (
	ConfigFile  = "dasch.toml"
	PlatesFile  = "plates.db"
	CatalogName = "catalog"
	ImagesDir   = "mosaics"
)

// Config represents the archive configuration.
type Config struct {
	DataDir                string  `toml:"data_dir"`
	Listen                 string  `toml:"listen"`
	LogLevel               string  `toml:"log_level"`
	LogFormat              string  `toml:"log_format"`
	QueryTimeout           string  `toml:"query_timeout"`
	CatalogBackend         string  `toml:"catalog_backend"`
	MaxCutoutPixels        int     `toml:"max_cutout_pixels"`
	MaxCatalogRadiusArcsec float64 `toml:"max_catalog_radius_arcsec"`
	ScanWorkers            int     `toml:"scan_workers"`
	RateLimit              float64 `toml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst              int     `toml:"rate_burst"`
	path                   string  // file the configuration was read from
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:                "/var/lib/dasch",
		Listen:                 "0.0.0.0:8730",
		LogLevel:               "info",
		LogFormat:              "json",
		QueryTimeout:           "30s",
		CatalogBackend:         catalog.BackendBbolt,
		MaxCutoutPixels:        4096,
		MaxCatalogRadiusArcsec: 3600,
		ScanWorkers:            8,
		RateLimit:              20,
		RateBurst:              40,
	}
}

// Load reads the configuration at path over the defaults and applies
// environment overrides. An empty path reads ConfigFile from the working
// directory when it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = ConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		cfg.path = path
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DataDir = envOrDefault("DASCH_DATA_DIR", c.DataDir)
	c.Listen = envOrDefault("DASCH_LISTEN", c.Listen)
	c.LogLevel = envOrDefault("DASCH_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOrDefault("DASCH_LOG_FORMAT", c.LogFormat)
	c.QueryTimeout = envOrDefault("DASCH_QUERY_TIMEOUT", c.QueryTimeout)
	c.CatalogBackend = envOrDefault("DASCH_CATALOG_BACKEND", c.CatalogBackend)

	ints := []struct {
		key string
		dst *int
	}{
		{"DASCH_MAX_CUTOUT_PIXELS", &c.MaxCutoutPixels},
		{"DASCH_SCAN_WORKERS", &c.ScanWorkers},
		{"DASCH_RATE_BURST", &c.RateBurst},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = n
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"DASCH_MAX_CATALOG_RADIUS_ARCSEC", &c.MaxCatalogRadiusArcsec},
		{"DASCH_RATE_LIMIT", &c.RateLimit},
	}
	for _, e := range floats {
		if v := os.Getenv(e.key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = f
		}
	}
	return nil
}

// Validate checks the values that cannot be defaulted at use.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	switch c.CatalogBackend {
	case catalog.BackendBbolt, catalog.BackendSQLite, catalog.BackendParquet:
	default:
		return fmt.Errorf("unknown catalog_backend %q", c.CatalogBackend)
	}
	if c.MaxCutoutPixels < 0 || c.MaxCatalogRadiusArcsec < 0 || c.ScanWorkers < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	return nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	c.path = path
	return nil
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// Timeout returns the per-query deadline.
func (c *Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.QueryTimeout)
	if err != nil {
		return 0, fmt.Errorf("query_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("query_timeout must be positive")
	}
	return d, nil
}

// PlatesDBPath returns the path to the plate metadata database.
func (c *Config) PlatesDBPath() string {
	return filepath.Join(c.DataDir, PlatesFile)
}

// CatalogPath returns the catalog location for the configured backend: a
// database file, or a directory for parquet.
func (c *Config) CatalogPath() string {
	switch c.CatalogBackend {
	case catalog.BackendSQLite:
		return filepath.Join(c.DataDir, CatalogName+".sqlite")
	case catalog.BackendParquet:
		return filepath.Join(c.DataDir, CatalogName)
	}
	return filepath.Join(c.DataDir, CatalogName+".db")
}

// ImagesPath returns the root directory of the mosaic store.
func (c *Config) ImagesPath() string {
	return filepath.Join(c.DataDir, ImagesDir)
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds the structured logger described by the configuration.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	var handler slog.Handler
	if c.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
