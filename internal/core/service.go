package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/skybin"
	"github.com/kilupskalvis/dasch-science/internal/store/catalog"
	"github.com/kilupskalvis/dasch-science/internal/store/imagestore"
)

// PlateStore reads plate metadata and the sky coverage index.
type PlateStore interface {
	GetPlate(ctx context.Context, id string) (*models.Plate, error)
	Coverage(ctx context.Context, cell uint64) ([]models.CoverageEntry, error)
}

// Options configures a Service. Zero values select the defaults.
type Options struct {
	Timeout         time.Duration
	MaxCutoutPixels int     // maximum cutout width or height
	MaxRadiusArcsec float64 // maximum catalog search radius
	Workers         int     // concurrent catalog range scans and plate loads
	Logger          *slog.Logger
}

const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxCutoutPixels = 4096
	DefaultMaxRadiusArcsec = 3600
	DefaultWorkers         = 8
)

// Service answers the archive queries. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	plates   PlateStore
	images   imagestore.ImageStore
	catalog  *CatalogPlanner
	coverage *skybin.Binning
	opts     Options
	logger   *slog.Logger
}

// NewService wires the stores into a Service. Catalog sources are binned with
// the GSC 1/64 degree tessellation and the coverage index with 1 degree bins.
func NewService(plates PlateStore, images imagestore.ImageStore, cat CatalogScanner, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxCutoutPixels <= 0 {
		opts.MaxCutoutPixels = DefaultMaxCutoutPixels
	}
	if opts.MaxRadiusArcsec <= 0 {
		opts.MaxRadiusArcsec = DefaultMaxRadiusArcsec
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		plates:   plates,
		images:   images,
		catalog:  NewCatalogPlanner(cat, skybin.New64(), opts.Workers, logger),
		coverage: NewCoverageBinning(),
		opts:     opts,
		logger:   logger,
	}
}

// CoverageBinning returns the tessellation of the coverage index, for
// indexing plates that this service will later search.
func (s *Service) CoverageBinning() *skybin.Binning { return s.coverage }

// Ready checks that the plate store answers.
func (s *Service) Ready(ctx context.Context) error {
	p, ok := s.plates.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// bound applies the service timeout to ctx.
func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.Timeout)
}

// finish maps an expired deadline to ErrTimeout. Cancellation by the caller
// passes through unchanged.
func finish(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, models.ErrTimeout) {
		return fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}
	return err
}

func (s *Service) loadPlate(ctx context.Context, id string) (*models.Plate, error) {
	plate, err := s.plates.GetPlate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("plate %s: %w", id, storageError(err))
	}
	return plate, nil
}

// Cutout extracts a square sub-image of a plate around a sky position.
func (s *Service) Cutout(ctx context.Context, req models.CutoutRequest) (*models.CutoutResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if 2*req.HalfSizePixels > s.opts.MaxCutoutPixels {
		return nil, fmt.Errorf("cutout of %d pixels exceeds limit %d: %w",
			2*req.HalfSizePixels, s.opts.MaxCutoutPixels, models.ErrInvalidRequest)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.cutout(ctx, req)
	return res, finish(err)
}

func (s *Service) cutout(ctx context.Context, req models.CutoutRequest) (*models.CutoutResult, error) {
	plate, err := s.loadPlate(ctx, req.PlateID)
	if err != nil {
		return nil, err
	}
	if !plate.HasMosaic() {
		return nil, fmt.Errorf("plate %s has no mosaic: %w", plate.PlateID, models.ErrNotFound)
	}
	if plate.RotationDelta != 0 {
		return nil, fmt.Errorf("plate %s solutions are rotated %d degrees from the mosaic: %w",
			plate.PlateID, plate.RotationDelta, models.ErrCorruptSource)
	}

	exps, loadErr := LoadExposures(plate, s.logger)
	solved := slices.DeleteFunc(exps, func(e Exposure) bool { return e.Approximate })

	var chosen *Exposure
	var ambiguous bool
	if req.Exposure != nil {
		for i := range solved {
			if solved[i].Record.Number == *req.Exposure {
				chosen = &solved[i]
				break
			}
		}
		if chosen == nil {
			if loadErr != nil {
				return nil, loadErr
			}
			return nil, fmt.Errorf("plate %s exposure %d: %w", plate.PlateID, *req.Exposure, models.ErrNotFound)
		}
	} else {
		m, amb, err := SelectOne(Resolve(solved, req.Center))
		if err != nil {
			if loadErr != nil {
				return nil, loadErr
			}
			return nil, fmt.Errorf("plate %s at %v: %w", plate.PlateID, req.Center, err)
		}
		chosen, ambiguous = m.Exposure, amb
		if ambiguous {
			s.logger.Debug("several exposures contain the cutout center",
				"plate", plate.PlateID, "exposure", chosen.Record.Number, "error", models.ErrAmbiguousExposure)
		}
	}

	im, err := s.images.Open(ctx, plate.ImageKey)
	if err != nil {
		return nil, fmt.Errorf("mosaic of plate %s: %w", plate.PlateID, storageError(err))
	}
	defer im.Close()

	if im.Width() != plate.Width || im.Height() != plate.Height {
		return nil, fmt.Errorf("mosaic of plate %s is %dx%d, expected %dx%d: %w",
			plate.PlateID, im.Width(), im.Height(), plate.Width, plate.Height, models.ErrCorruptSource)
	}

	plan, err := PlanRegion(ctx, chosen.Mapping, req.Center,
		Size{Arcsec: req.HalfSizeArcsec, Pixels: req.HalfSizePixels}, im.Width(), im.Height())
	if err != nil {
		return nil, err
	}
	if w, h := plan.Requested.Width(), plan.Requested.Height(); w > s.opts.MaxCutoutPixels || h > s.opts.MaxCutoutPixels {
		return nil, fmt.Errorf("cutout of %dx%d pixels exceeds limit %d: %w",
			w, h, s.opts.MaxCutoutPixels, models.ErrInvalidRequest)
	}
	s.logger.Debug("cutout region planned",
		"plate", plate.PlateID, "exposure", chosen.Record.Number,
		"region", plan.Region.String(), "clamped", plan.Clamped)

	format := req.Format
	if format == "" {
		format = models.FormatFITS
	}
	res, err := Assemble(ctx, im, chosen.Mapping, plan, format, Provenance{
		PlateID:  plate.PlateID,
		Exposure: chosen.Record.Number,
		Solution: chosen.Record.Solution,
	})
	if err != nil {
		return nil, err
	}
	res.Ambiguous = ambiguous
	return res, nil
}

// QueryCatalog returns catalog sources within the requested radius, nearest
// first.
func (s *Service) QueryCatalog(ctx context.Context, req models.CatalogRequest) ([]models.CatalogMatch, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	refcat := req.RefCat
	if refcat == "" {
		refcat = catalog.DefaultRefCat
	}
	if !catalog.ValidRefCat(refcat) {
		return nil, fmt.Errorf("unknown reference catalog %q: %w", refcat, models.ErrInvalidRequest)
	}
	if req.RadiusArcsec > s.opts.MaxRadiusArcsec {
		return nil, fmt.Errorf("radius %g arcsec exceeds limit %g: %w",
			req.RadiusArcsec, s.opts.MaxRadiusArcsec, models.ErrInvalidRequest)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	matches, err := s.catalog.Query(ctx, refcat, req.Center, req.RadiusArcsec/3600, req.Limit)
	return matches, finish(err)
}

// QueryExposures lists the exposures of one plate whose footprints contain
// the requested position, in exposure order. Approximate mappings stand in
// for exposures without a solution.
func (s *Service) QueryExposures(ctx context.Context, req models.ExposureRequest) ([]models.ExposureMatch, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	plate, err := s.loadPlate(ctx, req.PlateID)
	if err != nil {
		return nil, finish(err)
	}
	out, err := s.matchPlate(plate, req.Center)
	return out, finish(err)
}

// matchPlate resolves p against every usable exposure of plate. A corrupt
// solution only fails the call when nothing else matched.
func (s *Service) matchPlate(plate *models.Plate, p models.SkyPoint) ([]models.ExposureMatch, error) {
	exps, loadErr := LoadExposures(plate, s.logger)
	matches := Resolve(exps, p)
	if len(matches) == 0 && loadErr != nil {
		return nil, loadErr
	}
	out := make([]models.ExposureMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, Describe(plate, m))
	}
	return out, nil
}

// QuerySkyExposures searches the whole archive: the coverage index narrows
// the candidates to plates with an exposure near the position, and each
// candidate is then resolved exactly. Results are ordered by plate id, then
// exposure order. Plates with corrupt solutions are logged and skipped.
func (s *Service) QuerySkyExposures(ctx context.Context, req models.SkyExposureRequest) ([]models.ExposureMatch, error) {
	if err := req.Center.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	out, err := s.querySky(ctx, req.Center)
	return out, finish(err)
}

func (s *Service) querySky(ctx context.Context, p models.SkyPoint) ([]models.ExposureMatch, error) {
	cell := s.coverage.Cell(p)
	entries, err := s.plates.Coverage(ctx, cell)
	if err != nil {
		return nil, fmt.Errorf("coverage of cell %d: %w", cell, storageError(err))
	}

	var ids []string
	for _, e := range entries {
		if !slices.Contains(ids, e.PlateID) {
			ids = append(ids, e.PlateID)
		}
	}
	s.logger.Debug("sky exposure candidates", "cell", cell, "plates", len(ids))

	var (
		mu  sync.Mutex
		out []models.ExposureMatch
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, id := range ids {
		g.Go(func() error {
			plate, err := s.loadPlate(gctx, id)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					s.logger.Warn("coverage index names a missing plate", "plate", id)
					return nil
				}
				return err
			}
			found, err := s.matchPlate(plate, p)
			if err != nil {
				s.logger.Warn("skipping plate", "plate", id, "error", err)
				return nil
			}
			mu.Lock()
			out = append(out, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(out, func(a, b models.ExposureMatch) int {
		if c := cmp.Compare(a.PlateID, b.PlateID); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Exposure, b.Exposure); c != 0 {
			return c
		}
		return cmp.Compare(a.Solution, b.Solution)
	})
	return out, nil
}
