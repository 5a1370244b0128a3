package core

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/skybin"
)

// coverageGrid is the number of sample squares per bbox axis when computing
// the cells an exposure overlaps.
const coverageGrid = 32

// PlateWriter persists plates and their sky coverage.
type PlateWriter interface {
	PutPlate(ctx context.Context, plate *models.Plate) error
	PutCoverage(ctx context.Context, cell uint64, entries ...models.CoverageEntry) error
	DeleteCoverage(ctx context.Context, plateID string) error
}

// CoverageCells returns the cells of b that the footprint of e may overlap,
// in ascending order. The bbox is split into a grid of squares and each
// square is covered by the disk through its corners, so the result never
// misses a cell the footprint touches, up to the curvature of the mapping
// across one square.
func CoverageCells(e *Exposure, b *skybin.Binning) []uint64 {
	cells := make(map[uint64]struct{})
	bb := e.BBox
	sx := float64(bb.Width()) / coverageGrid
	sy := float64(bb.Height()) / coverageGrid
	x0 := float64(bb.X0) - 0.5
	y0 := float64(bb.Y0) - 0.5

	for j := range coverageGrid {
		for i := range coverageGrid {
			cx := x0 + (float64(i)+0.5)*sx
			cy := y0 + (float64(j)+0.5)*sy
			c, err := e.Mapping.ToSky(models.PixelCoord{X: cx, Y: cy})
			if err != nil {
				continue
			}
			var r float64
			for _, d := range [4][2]float64{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}} {
				corner, err := e.Mapping.ToSky(models.PixelCoord{X: cx + d[0]*sx/2, Y: cy + d[1]*sy/2})
				if err != nil {
					continue
				}
				r = max(r, c.Separation(corner))
			}
			for _, rg := range b.Cover(c, r*1.01) {
				for cell := rg.Lo; cell < rg.Hi; cell++ {
					cells[cell] = struct{}{}
				}
			}
		}
	}
	return slices.Sorted(maps.Keys(cells))
}

// NewCoverageBinning returns the tessellation of the coverage index: 1 degree
// declination bands.
func NewCoverageBinning() *skybin.Binning { return skybin.New1() }

// IndexPlate stores a plate and records every coverage cell of each of its
// exposures, replacing whatever coverage the plate had before. Exposures
// without a usable mapping are left out of the index.
func IndexPlate(ctx context.Context, w PlateWriter, plate *models.Plate, b *skybin.Binning, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := w.DeleteCoverage(ctx, plate.PlateID); err != nil {
		return fmt.Errorf("clear coverage of plate %s: %w", plate.PlateID, err)
	}
	if err := w.PutPlate(ctx, plate); err != nil {
		return fmt.Errorf("store plate %s: %w", plate.PlateID, err)
	}

	exps, loadErr := LoadExposures(plate, logger)
	if loadErr != nil {
		logger.Warn("indexing plate with unusable exposures", "plate", plate.PlateID, "error", loadErr)
	}

	byCell := make(map[uint64][]models.CoverageEntry)
	for i := range exps {
		entry := models.CoverageEntry{
			PlateID:  plate.PlateID,
			Solution: exps[i].Record.Solution,
			Exposure: exps[i].Record.Number,
		}
		for _, cell := range CoverageCells(&exps[i], b) {
			byCell[cell] = append(byCell[cell], entry)
		}
	}

	for _, cell := range slices.Sorted(maps.Keys(byCell)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.PutCoverage(ctx, cell, byCell[cell]...); err != nil {
			return fmt.Errorf("store coverage of plate %s: %w", plate.PlateID, err)
		}
	}
	logger.Debug("plate indexed", "plate", plate.PlateID, "exposures", len(exps), "cells", len(byCell))
	return nil
}
