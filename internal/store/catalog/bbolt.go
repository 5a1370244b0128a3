package catalog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/skybin"
)

// BboltStore keeps one bucket per reference catalog. Keys are the 8-byte
// big-endian cell number followed by the source id, so a cell range is one
// contiguous cursor walk.
type BboltStore struct {
	db *bolt.DB
}

// NewBboltStore opens or creates a bbolt catalog at the given path.
func NewBboltStore(dbPath string) (*BboltStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %v: %w", err, models.ErrStorageUnavailable)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range RefCats {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
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

func cellKey(cell uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], cell)
	return k[:]
}

// Put inserts or replaces sources.
func (s *BboltStore) Put(_ context.Context, refcat string, sources []models.CatalogSource) error {
	if err := checkRefCat(refcat); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(refcat))
		for _, src := range sources {
			data, err := json.Marshal(src)
			if err != nil {
				return fmt.Errorf("marshal source %s: %w", src.ID, err)
			}
			key := append(cellKey(src.Cell), src.ID...)
			if err := b.Put(key, data); err != nil {
				return fmt.Errorf("store source %s: %w", src.ID, err)
			}
		}
		return nil
	})
}

// Scan walks the keys of cells [r.Lo, r.Hi).
func (s *BboltStore) Scan(ctx context.Context, refcat string, r skybin.CellRange) ([]models.CatalogSource, error) {
	if err := checkRefCat(refcat); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sources []models.CatalogSource
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(refcat))
		if b == nil {
			return nil
		}
		end := cellKey(r.Hi)
		c := b.Cursor()
		n := 0
		for k, v := c.Seek(cellKey(r.Lo)); k != nil && bytes.Compare(k, end) < 0; k, v = c.Next() {
			if n++; n%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			var src models.CatalogSource
			if err := json.Unmarshal(v, &src); err != nil {
				return fmt.Errorf("unmarshal source %x: %v: %w", k, err, models.ErrCorruptSource)
			}
			sources = append(sources, src)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sources, nil
}
