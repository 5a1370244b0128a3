// Package cli implements the command-line interface for the DASCH archive.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/dasch-science/internal/config"
	"github.com/kilupskalvis/dasch-science/internal/core"
	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/remote"
	"github.com/kilupskalvis/dasch-science/internal/store/catalog"
	"github.com/kilupskalvis/dasch-science/internal/store/imagestore"
	"github.com/kilupskalvis/dasch-science/internal/store/platestore"
)

var (
	configPath string
	remoteURL  string
)

// querier answers the archive queries, either from local stores or from a
// remote server.
type querier interface {
	Cutout(ctx context.Context, req models.CutoutRequest) (*models.CutoutResult, error)
	QueryCatalog(ctx context.Context, req models.CatalogRequest) ([]models.CatalogMatch, error)
	QueryExposures(ctx context.Context, req models.ExposureRequest) ([]models.ExposureMatch, error)
	QuerySkyExposures(ctx context.Context, req models.SkyExposureRequest) ([]models.ExposureMatch, error)
}

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config  *config.Config
	Plates  *platestore.BboltStore
	Catalog catalog.Store
	Images  *imagestore.FSStore
	Query   querier
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Plates != nil {
		c.Plates.Close()
	}
	if c.Catalog != nil {
		c.Catalog.Close()
	}
}

// initContext loads the configuration only.
func initContext() *cmdContext {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitError("%v", err)
	}
	return &cmdContext{Config: cfg}
}

// openLocal opens the plate, catalog and image stores named by cfg and wires
// them into a core.Service.
func openLocal(cfg *config.Config, logger io.Writer) (*cmdContext, *core.Service, error) {
	ctx := &cmdContext{Config: cfg}

	plates, err := platestore.OpenReadOnly(cfg.PlatesDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open plate store: %w", err)
	}
	ctx.Plates = plates

	cat, err := catalog.Open(cfg.CatalogBackend, cfg.CatalogPath())
	if err != nil {
		ctx.Close()
		return nil, nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	ctx.Catalog = cat

	images, err := imagestore.NewFSStore(cfg.ImagesPath())
	if err != nil {
		ctx.Close()
		return nil, nil, fmt.Errorf("failed to open image store: %w", err)
	}
	ctx.Images = images

	timeout, _ := cfg.Timeout() // validated by config.Load
	svc := core.NewService(plates, images, cat, core.Options{
		Timeout:         timeout,
		MaxCutoutPixels: cfg.MaxCutoutPixels,
		MaxRadiusArcsec: cfg.MaxCatalogRadiusArcsec,
		Workers:         cfg.ScanWorkers,
		Logger:          cfg.NewLogger(logger),
	})
	ctx.Query = svc
	return ctx, svc, nil
}

// initQueryContext returns a context whose Query answers from the server at
// --remote when set, and from the local stores otherwise.
func initQueryContext() *cmdContext {
	if remoteURL != "" {
		client := remote.NewRetryClient(remote.NewHTTPClient(remoteURL), nil)
		return &cmdContext{Query: &remoteQuerier{client: client}}
	}

	cfg := initContext().Config
	ctx, _, err := openLocal(cfg, os.Stderr)
	if err != nil {
		exitError("%v", err)
	}
	return ctx
}

// remoteQuerier adapts a remote.Client to the querier interface.
type remoteQuerier struct {
	client remote.Client
}

func (q *remoteQuerier) Cutout(ctx context.Context, req models.CutoutRequest) (*models.CutoutResult, error) {
	resp, err := q.client.Cutout(ctx, req)
	if err != nil {
		return nil, err
	}
	return &resp.CutoutResult, nil
}

func (q *remoteQuerier) QueryCatalog(ctx context.Context, req models.CatalogRequest) ([]models.CatalogMatch, error) {
	resp, err := q.client.QueryCatalog(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

func (q *remoteQuerier) QueryExposures(ctx context.Context, req models.ExposureRequest) ([]models.ExposureMatch, error) {
	resp, err := q.client.QueryExposures(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

func (q *remoteQuerier) QuerySkyExposures(ctx context.Context, req models.SkyExposureRequest) ([]models.ExposureMatch, error) {
	resp, err := q.client.QuerySkyExposures(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

var rootCmd = &cobra.Command{
	Use:   "dasch-science",
	Short: "DASCH plate archive queries",
	Long: `dasch-science queries the DASCH astronomical plate archive: cutouts of
scanned plates around a sky position, reference-catalog cone searches, and
the exposures that cover a position.

Queries run against the local stores under data_dir, or against a running
server with --remote.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; the environment may be set directly.
		_ = godotenv.Load()
		if remoteURL == "" {
			remoteURL = os.Getenv("DASCH_REMOTE")
		}
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default: ./"+config.ConfigFile+" when present)")
	pf.StringVar(&remoteURL, "remote", "", "Query a dasch-science server at this URL instead of local stores (env: DASCH_REMOTE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cutoutCmd)
	rootCmd.AddCommand(querycatCmd)
	rootCmd.AddCommand(queryexpsCmd)
	rootCmd.AddCommand(indexPlatesCmd)
	rootCmd.AddCommand(putMosaicCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// parseSky reads a position from RA and Dec arguments in decimal degrees.
func parseSky(raArg, decArg string) (models.SkyPoint, error) {
	var p models.SkyPoint
	var err error
	if p.RA, err = strconv.ParseFloat(raArg, 64); err != nil {
		return p, fmt.Errorf("invalid RA %q", raArg)
	}
	if p.Dec, err = strconv.ParseFloat(decArg, 64); err != nil {
		return p, fmt.Errorf("invalid Dec %q", decArg)
	}
	return p, p.Validate()
}
