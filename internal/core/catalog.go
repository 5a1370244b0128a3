package core

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/skybin"
)

// CatalogScanner reads one contiguous range of catalog cells.
type CatalogScanner interface {
	Scan(ctx context.Context, refcat string, r skybin.CellRange) ([]models.CatalogSource, error)
}

// CatalogPlanner answers cone searches against a cell-partitioned catalog.
type CatalogPlanner struct {
	store   CatalogScanner
	binning *skybin.Binning
	workers int
	logger  *slog.Logger
}

// NewCatalogPlanner creates a planner scanning store with at most workers
// concurrent range scans.
func NewCatalogPlanner(store CatalogScanner, binning *skybin.Binning, workers int, logger *slog.Logger) *CatalogPlanner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogPlanner{store: store, binning: binning, workers: workers, logger: logger}
}

// Query returns the sources of refcat within radiusDeg of center, nearest
// first with ties broken by source id. A positive limit truncates the list.
func (p *CatalogPlanner) Query(ctx context.Context, refcat string, center models.SkyPoint, radiusDeg float64, limit int) ([]models.CatalogMatch, error) {
	ranges := p.binning.Cover(center, radiusDeg)
	p.logger.Debug("catalog cover",
		"refcat", refcat, "center", center.String(), "radius_deg", radiusDeg,
		"ranges", len(ranges), "cells", skybin.Count(ranges))

	var (
		mu      sync.Mutex
		matches []models.CatalogMatch
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, r := range ranges {
		g.Go(func() error {
			sources, err := p.store.Scan(gctx, refcat, r)
			if err != nil {
				return fmt.Errorf("scan cells [%d,%d): %w", r.Lo, r.Hi, storageError(err))
			}
			var local []models.CatalogMatch
			for _, src := range sources {
				if m, ok := matchSource(center, radiusDeg, src); ok {
					local = append(local, m)
				}
			}
			mu.Lock()
			matches = append(matches, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b models.CatalogMatch) int {
		if c := cmp.Compare(a.SeparationArcsec, b.SeparationArcsec); c != 0 {
			return c
		}
		return cmp.Compare(a.Source.ID, b.Source.ID)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// matchSource applies the exact distance test and computes the reported
// offsets of the query center from the source.
func matchSource(center models.SkyPoint, radiusDeg float64, src models.CatalogSource) (models.CatalogMatch, bool) {
	sep := center.Separation(src.Position)
	if !(sep <= radiusDeg) {
		return models.CatalogMatch{}, false
	}
	factor := math.Cos(0.5 * (src.Position.Dec + center.Dec) * models.D2R)
	return models.CatalogMatch{
		Source:           src,
		SeparationArcsec: sep * 3600,
		DRAArcsec:        3600 * factor * models.DeltaRA(center.RA, src.Position.RA),
		DDecArcsec:       3600 * (center.Dec - src.Position.Dec),
	}, true
}
