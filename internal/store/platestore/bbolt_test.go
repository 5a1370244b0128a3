package platestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/dasch-science/internal/models"
)

func newTestStore(t *testing.T) *BboltStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "plates.db")
	s, err := NewBboltStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBboltStore_GetPlate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetPlate(ctx, "a00001")
	assert.ErrorIs(t, err, models.ErrNotFound)

	dur := 45.0
	plate := &models.Plate{
		PlateID:     "a00001",
		Series:      "a",
		PlateNumber: 1,
		ImageKey:    "a/a00001.fits",
		Width:       2000,
		Height:      1500,
		ScanNumber:  1,
		Exposures: []models.ExposureRecord{
			{Number: 0, Solution: 0, BBox: models.Rect(0, 0, 1000, 1500), DurationMin: &dur},
			{Number: 1, Solution: -1, Center: &models.SkyPoint{RA: 10, Dec: 20}},
		},
	}
	require.NoError(t, s.PutPlate(ctx, plate))

	got, err := s.GetPlate(ctx, "a00001")
	require.NoError(t, err)
	assert.Equal(t, plate, got)

	count, err := s.PlateCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBboltStore_PutPlate_RequiresID(t *testing.T) {
	s := newTestStore(t)
	err := s.PutPlate(context.Background(), &models.Plate{})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestBboltStore_ListPlateIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"mc1234", "a00002", "b51503"} {
		require.NoError(t, s.PutPlate(ctx, &models.Plate{PlateID: id}))
	}

	ids, err := s.ListPlateIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a00002", "b51503", "mc1234"}, ids)
}

func TestBboltStore_Coverage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entries, err := s.Coverage(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.PutCoverage(ctx, 42,
		models.CoverageEntry{PlateID: "b51503", Solution: 0, Exposure: 0},
		models.CoverageEntry{PlateID: "am25350", Solution: 1, Exposure: 2},
		models.CoverageEntry{PlateID: "am25350", Solution: 0, Exposure: 1},
	))
	require.NoError(t, s.PutCoverage(ctx, 43,
		models.CoverageEntry{PlateID: "zz1", Solution: 0, Exposure: 0},
	))
	// Duplicate insert is a no-op.
	require.NoError(t, s.PutCoverage(ctx, 42,
		models.CoverageEntry{PlateID: "b51503", Solution: 0, Exposure: 0},
	))

	entries, err = s.Coverage(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []models.CoverageEntry{
		{PlateID: "am25350", Solution: 0, Exposure: 1},
		{PlateID: "am25350", Solution: 1, Exposure: 2},
		{PlateID: "b51503", Solution: 0, Exposure: 0},
	}, entries)
}

func TestBboltStore_DeleteCoverage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutCoverage(ctx, 42,
		models.CoverageEntry{PlateID: "a1", Solution: 0, Exposure: 0},
		models.CoverageEntry{PlateID: "a1", Solution: 1, Exposure: 0},
		models.CoverageEntry{PlateID: "a12", Solution: 0, Exposure: 0},
	))
	require.NoError(t, s.PutCoverage(ctx, 1<<40,
		models.CoverageEntry{PlateID: "a1", Solution: 0, Exposure: 0},
	))

	require.NoError(t, s.DeleteCoverage(ctx, "a1"))

	// Plates sharing a prefix keep their entries.
	entries, err := s.Coverage(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []models.CoverageEntry{{PlateID: "a12", Solution: 0, Exposure: 0}}, entries)

	entries, err = s.Coverage(ctx, 1<<40)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Deleting a plate with no coverage is fine.
	require.NoError(t, s.DeleteCoverage(ctx, "nothing"))
}

func TestBboltStore_CanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetPlate(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Coverage(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "plates.db")

	s, err := NewBboltStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.PutPlate(ctx, &models.Plate{PlateID: "p1"}))
	require.NoError(t, s.Close())

	ro, err := OpenReadOnly(dbPath)
	require.NoError(t, err)
	defer ro.Close()

	require.NoError(t, ro.Ping(ctx))
	got, err := ro.GetPlate(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PlateID)
}
