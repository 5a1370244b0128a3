// Package catalog stores reference-catalog sources partitioned by sky cell.
//
// Every backend supports the same two operations: bulk insert of sources whose
// Cell is already assigned, and a scan of one contiguous cell range. Scans
// return sources in (cell, id) order.
package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/skybin"
)

// Backend names accepted by Open.
const (
	BackendBbolt   = "bbolt"
	BackendSQLite  = "sqlite"
	BackendParquet = "parquet"
)

// Reference catalogs served by the archive.
const (
	RefCatAPASS = "apass"
	RefCatATLAS = "atlas"
)

// DefaultRefCat is used when a request names no catalog.
const DefaultRefCat = RefCatAPASS

// RefCats lists the known reference catalogs.
var RefCats = []string{RefCatAPASS, RefCatATLAS}

// ValidRefCat reports whether name is a known catalog.
func ValidRefCat(name string) bool {
	return slices.Contains(RefCats, name)
}

// Store is a cell-partitioned catalog.
type Store interface {
	// Scan returns the sources of refcat whose cell lies in r.
	Scan(ctx context.Context, refcat string, r skybin.CellRange) ([]models.CatalogSource, error)

	// Put inserts or replaces sources.
	Put(ctx context.Context, refcat string, sources []models.CatalogSource) error

	Close() error
}

// Open opens the catalog at path with the named backend. For bbolt and sqlite
// path is a database file; for parquet it is a directory.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case BackendBbolt, "":
		return NewBboltStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	case BackendParquet:
		return NewParquetStore(path)
	}
	return nil, fmt.Errorf("unknown catalog backend %q", backend)
}

func checkRefCat(refcat string) error {
	if !ValidRefCat(refcat) {
		return fmt.Errorf("unknown reference catalog %q: %w", refcat, models.ErrInvalidRequest)
	}
	return nil
}

func sortSources(sources []models.CatalogSource) {
	slices.SortFunc(sources, func(a, b models.CatalogSource) int {
		if a.Cell != b.Cell {
			if a.Cell < b.Cell {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
}
