package core

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/skybin"
	"github.com/kilupskalvis/dasch-science/internal/store/platestore"
)

func newPlateStore(t *testing.T) *platestore.BboltStore {
	t.Helper()
	s, err := platestore.NewBboltStore(filepath.Join(t.TempDir(), "plates.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCoverageCells_NoMissedCells(t *testing.T) {
	b := skybin.New1()
	h, err := LoadExposures(testPlate(t), nil)
	require.NoError(t, err)
	e := &h[0]

	cells := CoverageCells(e, b)
	require.NotEmpty(t, cells)
	assert.True(t, slices.IsSorted(cells))

	rng := rand.New(rand.NewPCG(3, 7))
	for range 2000 {
		px := models.PixelCoord{X: rng.Float64()*1000 - 0.5, Y: rng.Float64()*1000 - 0.5}
		p, err := e.Mapping.ToSky(px)
		require.NoError(t, err)
		_, found := slices.BinarySearch(cells, b.Cell(p))
		require.True(t, found, "pixel %v at %v not covered", px, p)
	}
}

func TestIndexPlate(t *testing.T) {
	ctx := context.Background()
	s := newPlateStore(t)
	b := skybin.New1()
	plate := testPlate(t)

	require.NoError(t, IndexPlate(ctx, s, plate, b, nil))

	got, err := s.GetPlate(ctx, plate.PlateID)
	require.NoError(t, err)
	assert.Equal(t, plate.PlateID, got.PlateID)

	entries, err := s.Coverage(ctx, b.Cell(models.SkyPoint{RA: 10.5, Dec: 20.5}))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.CoverageEntry{PlateID: "a00001", Solution: 0, Exposure: 0}, entries[0])

	entries, err = s.Coverage(ctx, b.Cell(models.SkyPoint{RA: 200, Dec: -40}))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIndexPlate_ReplacesCoverage(t *testing.T) {
	ctx := context.Background()
	s := newPlateStore(t)
	b := skybin.New1()
	plate := testPlate(t)
	require.NoError(t, IndexPlate(ctx, s, plate, b, nil))

	oldCell := b.Cell(models.SkyPoint{RA: 10.5, Dec: 20.5})
	entries, err := s.Coverage(ctx, oldCell)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// A new astrometric solution moves the plate to another part of the sky.
	moved := testPlate(t)
	moved.Exposures[0].HeaderGz = gzHeader(t, linearHeader(t, models.SkyPoint{RA: 200, Dec: -40}))
	require.NoError(t, IndexPlate(ctx, s, moved, b, nil))

	entries, err = s.Coverage(ctx, oldCell)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = s.Coverage(ctx, b.Cell(models.SkyPoint{RA: 200.5, Dec: -39.5}))
	require.NoError(t, err)
	assert.Equal(t, []models.CoverageEntry{{PlateID: "a00001", Solution: 0, Exposure: 0}}, entries)
}
