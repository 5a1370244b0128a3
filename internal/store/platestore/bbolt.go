// Package platestore persists plate metadata and the coarse sky coverage index
// that maps sky cells to the exposures overlapping them.
package platestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kilupskalvis/dasch-science/internal/models"
)

var (
	bucketPlates     = []byte("plates")
	bucketCoverage   = []byte("coverage")
	bucketPlateCells = []byte("plate_cells")
)

// BboltStore keeps plates as JSON records keyed by plate id, and coverage
// entries keyed by an 8-byte big-endian cell number followed by the plate,
// solution and exposure they point at. A plate_cells bucket maps each plate
// back to the cells it was recorded in.
type BboltStore struct {
	db *bolt.DB
}

// NewBboltStore opens or creates a bbolt database at the given path.
func NewBboltStore(dbPath string) (*BboltStore, error) {
	return open(dbPath, false)
}

// OpenReadOnly opens an existing database without taking the write lock, so
// several servers can share one file.
func OpenReadOnly(dbPath string) (*BboltStore, error) {
	return open(dbPath, true)
}

func open(dbPath string, readOnly bool) (*BboltStore, error) {
	if !readOnly {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create plate directory: %w", err)
			}
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("open plate database: %v: %w", err, models.ErrStorageUnavailable)
	}

	if !readOnly {
		if err := db.Update(func(tx *bolt.Tx) error {
			for _, name := range [][]byte{bucketPlates, bucketCoverage, bucketPlateCells} {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return fmt.Errorf("create bucket %s: %w", name, err)
				}
			}
			return nil
		}); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &BboltStore{db: db}, nil
}

// Close releases the bbolt database.
func (s *BboltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is readable.
func (s *BboltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketPlates) == nil {
			return fmt.Errorf("missing plates bucket: %w", models.ErrStorageUnavailable)
		}
		return nil
	})
}

// GetPlate retrieves a plate by id. Returns models.ErrNotFound if missing.
func (s *BboltStore) GetPlate(ctx context.Context, id string) (*models.Plate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var plate *models.Plate
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlates)
		if b == nil {
			return fmt.Errorf("plate %s: %w", id, models.ErrNotFound)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("plate %s: %w", id, models.ErrNotFound)
		}
		plate = &models.Plate{}
		if err := json.Unmarshal(data, plate); err != nil {
			return fmt.Errorf("unmarshal plate %s: %v: %w", id, err, models.ErrCorruptSource)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plate, nil
}

// PutPlate stores or replaces a plate record.
func (s *BboltStore) PutPlate(_ context.Context, plate *models.Plate) error {
	if plate.PlateID == "" {
		return fmt.Errorf("plate id is required: %w", models.ErrInvalidRequest)
	}
	data, err := json.Marshal(plate)
	if err != nil {
		return fmt.Errorf("marshal plate: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPlates).Put([]byte(plate.PlateID), data)
	})
}

// ListPlateIDs returns all plate ids in key order.
func (s *BboltStore) ListPlateIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPlates).ForEach(func(k, _ []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// PlateCount returns the number of stored plates.
func (s *BboltStore) PlateCount(_ context.Context) (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketPlates).Stats().KeyN
		return nil
	})
	return count, err
}

func cellPrefix(cell uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], cell)
	return k[:]
}

func coverageKey(cell uint64, e models.CoverageEntry) []byte {
	return fmt.Appendf(cellPrefix(cell), "%s/%d/%d", e.PlateID, e.Solution, e.Exposure)
}

func plateCellsPrefix(plateID string) []byte {
	return append([]byte(plateID), 0)
}

// PutCoverage records that the given exposures overlap cell. Re-adding an
// entry is a no-op.
func (s *BboltStore) PutCoverage(_ context.Context, cell uint64, entries ...models.CoverageEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCoverage)
		back := tx.Bucket(bucketPlateCells)
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal coverage entry: %w", err)
			}
			if err := b.Put(coverageKey(cell, e), data); err != nil {
				return fmt.Errorf("store coverage entry: %w", err)
			}
			if err := back.Put(append(plateCellsPrefix(e.PlateID), cellPrefix(cell)...), nil); err != nil {
				return fmt.Errorf("store plate cell: %w", err)
			}
		}
		return nil
	})
}

// DeleteCoverage removes every coverage entry recorded for a plate, so that
// re-indexing a plate whose solution moved leaves nothing at the old cells.
func (s *BboltStore) DeleteCoverage(ctx context.Context, plateID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCoverage)
		back := tx.Bucket(bucketPlateCells)

		var backKeys, coverageKeys [][]byte
		prefix := plateCellsPrefix(plateID)
		bc := back.Cursor()
		for k, _ := bc.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = bc.Next() {
			backKeys = append(backKeys, bytes.Clone(k))

			entryPrefix := append(bytes.Clone(k[len(prefix):]), plateID+"/"...)
			c := b.Cursor()
			for ck, _ := c.Seek(entryPrefix); ck != nil && bytes.HasPrefix(ck, entryPrefix); ck, _ = c.Next() {
				coverageKeys = append(coverageKeys, bytes.Clone(ck))
			}
		}

		for _, k := range coverageKeys {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete coverage entry: %w", err)
			}
		}
		for _, k := range backKeys {
			if err := back.Delete(k); err != nil {
				return fmt.Errorf("delete plate cell: %w", err)
			}
		}
		return nil
	})
}

// Coverage returns the exposures registered for cell, ordered by plate id,
// solution and exposure number.
func (s *BboltStore) Coverage(ctx context.Context, cell uint64) ([]models.CoverageEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []models.CoverageEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCoverage)
		if b == nil {
			return nil
		}
		prefix := cellPrefix(cell)
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e models.CoverageEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshal coverage entry: %v: %w", err, models.ErrCorruptSource)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.PlateID != b.PlateID {
			return a.PlateID < b.PlateID
		}
		if a.Solution != b.Solution {
			return a.Solution < b.Solution
		}
		return a.Exposure < b.Exposure
	})
	return entries, nil
}
