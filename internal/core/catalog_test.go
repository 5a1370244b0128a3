package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/skybin"
)

// memCatalog holds sources in memory and records the ranges it was asked for.
type memCatalog struct {
	mu      sync.Mutex
	sources []models.CatalogSource
	scanned []skybin.CellRange
	err     error
}

func newMemCatalog(b *skybin.Binning, sources ...models.CatalogSource) *memCatalog {
	for i := range sources {
		sources[i].Cell = b.Cell(sources[i].Position)
	}
	return &memCatalog{sources: sources}
}

func (c *memCatalog) Scan(ctx context.Context, _ string, r skybin.CellRange) ([]models.CatalogSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scanned = append(c.scanned, r)
	if c.err != nil {
		return nil, c.err
	}
	var out []models.CatalogSource
	for _, s := range c.sources {
		if s.Cell >= r.Lo && s.Cell < r.Hi {
			out = append(out, s)
		}
	}
	return out, nil
}

func src(id string, ra, dec float64) models.CatalogSource {
	return models.CatalogSource{ID: id, Position: models.SkyPoint{RA: ra, Dec: dec}}
}

func TestCatalogPlanner_Radius(t *testing.T) {
	b := skybin.New64()
	center := models.SkyPoint{RA: 120, Dec: 45}
	r := 10.0 / 3600

	store := newMemCatalog(b,
		src("center", 120, 45),
		src("inside", 120, 45+0.5*r),
		src("twice", 120, 45+2*r),
	)
	p := NewCatalogPlanner(store, b, 4, nil)

	got, err := p.Query(context.Background(), "apass", center, r, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "center", got[0].Source.ID)
	assert.InDelta(t, 0, got[0].SeparationArcsec, 1e-9)
	assert.Equal(t, "inside", got[1].Source.ID)
	assert.InDelta(t, 5, got[1].SeparationArcsec, 1e-6)
	assert.InDelta(t, -5, got[1].DDecArcsec, 1e-6)
	assert.InDelta(t, 0, got[1].DRAArcsec, 1e-6)
}

func TestCatalogPlanner_TiesAndLimit(t *testing.T) {
	b := skybin.New64()
	center := models.SkyPoint{RA: 30, Dec: 0}
	d := 3.0 / 3600

	store := newMemCatalog(b,
		src("c", 30, d),
		src("a", 30, -d),
		src("near", 30, 0.5*d),
	)
	p := NewCatalogPlanner(store, b, 2, nil)

	got, err := p.Query(context.Background(), "apass", center, 2*d, 0)
	require.NoError(t, err)
	var ids []string
	for _, m := range got {
		ids = append(ids, m.Source.ID)
	}
	assert.Equal(t, []string{"near", "a", "c"}, ids)

	got, err = p.Query(context.Background(), "apass", center, 2*d, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[1].Source.ID)
}

func TestCatalogPlanner_RAWrap(t *testing.T) {
	b := skybin.New64()
	center := models.SkyPoint{RA: 0.0005, Dec: 10}
	store := newMemCatalog(b,
		src("west", 359.9995, 10),
		src("east", 0.001, 10),
	)
	p := NewCatalogPlanner(store, b, 4, nil)

	got, err := p.Query(context.Background(), "apass", center, 5.0/3600, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "east", got[0].Source.ID)
	assert.Equal(t, "west", got[1].Source.ID)
	// Offsets are query minus source: the source west of the center has a
	// positive RA offset.
	assert.Greater(t, got[1].DRAArcsec, 0.0)
	assert.Less(t, got[0].DRAArcsec, 0.0)

	west := b.Cell(models.SkyPoint{RA: 359.9995, Dec: 10})
	var covered bool
	for _, r := range store.scanned {
		covered = covered || (west >= r.Lo && west < r.Hi)
	}
	assert.True(t, covered, "cells before RA 0 were not scanned")
}

func TestCatalogPlanner_StoreFailure(t *testing.T) {
	b := skybin.New64()
	store := newMemCatalog(b)
	store.err = errors.New("disk on fire")
	p := NewCatalogPlanner(store, b, 4, nil)

	_, err := p.Query(context.Background(), "apass", models.SkyPoint{RA: 1, Dec: 1}, 0.01, 0)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}

func TestCatalogPlanner_Canceled(t *testing.T) {
	b := skybin.New64()
	p := NewCatalogPlanner(newMemCatalog(b), b, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Query(ctx, "apass", models.SkyPoint{RA: 1, Dec: 1}, 0.01, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrStorageUnavailable)
}

func TestCatalogPlanner_WorkerCountIndependent(t *testing.T) {
	b := skybin.New64()
	center := models.SkyPoint{RA: 0.005, Dec: 30}
	r := 90.0 / 3600

	rng := rand.New(rand.NewPCG(11, 29))
	var sources []models.CatalogSource
	for i := range 3000 {
		ra := models.NormalizeRA(center.RA + (rng.Float64()*2-1)*3*r)
		dec := center.Dec + (rng.Float64()*2-1)*3*r
		sources = append(sources, src(fmt.Sprintf("s%04d", i), ra, dec))
	}
	// Exact ties in separation.
	sources = append(sources,
		src("tie-a", center.RA, center.Dec+r/2),
		src("tie-b", center.RA, center.Dec-r/2),
	)

	for _, limit := range []int{0, 25} {
		serial := newMemCatalog(b, slices.Clone(sources)...)
		want, err := NewCatalogPlanner(serial, b, 1, nil).Query(context.Background(), "apass", center, r, limit)
		require.NoError(t, err)
		require.NotEmpty(t, want)
		require.Greater(t, len(serial.scanned), 1, "query should span several cell ranges")

		for _, workers := range []int{2, 8, 64} {
			got, err := NewCatalogPlanner(newMemCatalog(b, slices.Clone(sources)...), b, workers, nil).
				Query(context.Background(), "apass", center, r, limit)
			require.NoError(t, err)
			assert.Equal(t, want, got, "workers %d limit %d", workers, limit)
		}
	}
}
