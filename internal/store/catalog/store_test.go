package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/skybin"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	stores := map[string]Store{}
	for backend, path := range map[string]string{
		BackendBbolt:   filepath.Join(dir, "catalog.db"),
		BackendSQLite:  filepath.Join(dir, "catalog.sqlite"),
		BackendParquet: filepath.Join(dir, "parquet"),
	} {
		s, err := Open(backend, path)
		require.NoError(t, err, backend)
		t.Cleanup(func() { s.Close() })
		stores[backend] = s
	}
	return stores
}

func source(id string, ref uint64, ra, dec float64) models.CatalogSource {
	p := models.SkyPoint{RA: ra, Dec: dec}
	return models.CatalogSource{
		ID:         id,
		RefNumber:  ref,
		Position:   p,
		Cell:       skybin.New64().Cell(p),
		Attributes: map[string]string{"stdmag": "12.5", "class": "0"},
	}
}

func TestStores_PutAndScan(t *testing.T) {
	ctx := context.Background()
	b := skybin.New64()

	a1 := source("a1", 412345671234567, 10.0, 20.0)
	a2 := source("a2", 412345671234568, 10.0001, 20.0001) // same cell as a1
	far := source("far", 412345671234569, 200, -40)

	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, RefCatAPASS, []models.CatalogSource{far, a2, a1}))

			cell := b.Cell(a1.Position)
			require.Equal(t, cell, a2.Cell)

			got, err := s.Scan(ctx, RefCatAPASS, skybin.CellRange{Lo: cell, Hi: cell + 1})
			require.NoError(t, err)
			assert.Equal(t, []models.CatalogSource{a1, a2}, got)

			// Other catalogs are separate.
			got, err = s.Scan(ctx, RefCatATLAS, skybin.CellRange{Lo: cell, Hi: cell + 1})
			require.NoError(t, err)
			assert.Empty(t, got)

			// Half-open: the upper bound is excluded.
			got, err = s.Scan(ctx, RefCatAPASS, skybin.CellRange{Lo: cell - 5, Hi: cell})
			require.NoError(t, err)
			assert.Empty(t, got)

			// Replacing a source keeps one row.
			moved := a1
			moved.Attributes = map[string]string{"stdmag": "13.0"}
			require.NoError(t, s.Put(ctx, RefCatAPASS, []models.CatalogSource{moved}))
			got, err = s.Scan(ctx, RefCatAPASS, skybin.CellRange{Lo: cell, Hi: cell + 1})
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "13.0", got[0].Attributes["stdmag"])
		})
	}
}

func TestStores_UnknownRefCat(t *testing.T) {
	ctx := context.Background()
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Scan(ctx, "gaia", skybin.CellRange{Lo: 0, Hi: 1})
			assert.ErrorIs(t, err, models.ErrInvalidRequest)
			err = s.Put(ctx, "gaia", nil)
			assert.ErrorIs(t, err, models.ErrInvalidRequest)
		})
	}
}

func TestStores_CanceledScan(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Scan(ctx, RefCatAPASS, skybin.CellRange{Lo: 0, Hi: 10})
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestStores_ExpiredScan(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(context.Background(), RefCatAPASS, []models.CatalogSource{source("a1", 1, 10, 20)}))
			_, err := s.Scan(ctx, RefCatAPASS, skybin.CellRange{Lo: 0, Hi: 10})
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.NotErrorIs(t, err, models.ErrStorageUnavailable)
		})
	}
}

func TestReadErr(t *testing.T) {
	iterErr := errors.New("sql: Rows are closed")

	err := readErr(context.Background(), "iterate catalog", iterErr)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.ErrorContains(t, err, "iterate catalog")

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	err = readErr(ctx, "iterate catalog", iterErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, models.ErrStorageUnavailable)

	canceled, stop := context.WithCancel(context.Background())
	stop()
	assert.ErrorIs(t, readErr(canceled, "query catalog", iterErr), context.Canceled)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("dynamo", t.TempDir())
	assert.Error(t, err)
}

func TestValidRefCat(t *testing.T) {
	assert.True(t, ValidRefCat("apass"))
	assert.True(t, ValidRefCat("atlas"))
	assert.False(t, ValidRefCat("APASS"))
}
