package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/skybin"
)

// sourceRow is the on-disk parquet layout of a catalog source.
type sourceRow struct {
	ID         string            `parquet:"id"`
	RefNumber  uint64            `parquet:"ref_number"`
	RA         float64           `parquet:"ra"`
	Dec        float64           `parquet:"dec"`
	Cell       uint64            `parquet:"cell"`
	Attributes map[string]string `parquet:"attributes"`
}

// ParquetStore keeps one parquet file per catalog cell under
// <root>/<refcat>/<cell>.parquet. A missing file is an empty cell.
type ParquetStore struct {
	root string
}

// NewParquetStore creates a parquet catalog rooted at the given directory.
func NewParquetStore(root string) (*ParquetStore, error) {
	for _, name := range RefCats {
		if err := os.MkdirAll(filepath.Join(root, name), 0755); err != nil {
			return nil, fmt.Errorf("create catalog root: %w", err)
		}
	}
	return &ParquetStore{root: root}, nil
}

// Close is a no-op; files are opened per scan.
func (s *ParquetStore) Close() error { return nil }

func (s *ParquetStore) cellPath(refcat string, cell uint64) string {
	return filepath.Join(s.root, refcat, strconv.FormatUint(cell, 10)+".parquet")
}

// Put merges sources into their cell files, replacing rows with the same id.
func (s *ParquetStore) Put(_ context.Context, refcat string, sources []models.CatalogSource) error {
	if err := checkRefCat(refcat); err != nil {
		return err
	}

	byCell := make(map[uint64][]models.CatalogSource)
	for _, src := range sources {
		byCell[src.Cell] = append(byCell[src.Cell], src)
	}

	for cell, add := range byCell {
		existing, err := s.readCell(refcat, cell)
		if err != nil {
			return err
		}
		merged := make(map[string]models.CatalogSource, len(existing)+len(add))
		for _, src := range existing {
			merged[src.ID] = src
		}
		for _, src := range add {
			merged[src.ID] = src
		}
		all := make([]models.CatalogSource, 0, len(merged))
		for _, src := range merged {
			all = append(all, src)
		}
		sortSources(all)
		if err := s.writeCell(refcat, cell, all); err != nil {
			return err
		}
	}
	return nil
}

func (s *ParquetStore) writeCell(refcat string, cell uint64, sources []models.CatalogSource) error {
	path := s.cellPath(refcat, cell)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cell-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	w := parquet.NewGenericWriter[sourceRow](tmp)
	rows := make([]sourceRow, len(sources))
	for i, src := range sources {
		rows[i] = sourceRow{
			ID:         src.ID,
			RefNumber:  src.RefNumber,
			RA:         src.Position.RA,
			Dec:        src.Position.Dec,
			Cell:       src.Cell,
			Attributes: src.Attributes,
		}
	}
	if _, err := w.Write(rows); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write cell %d: %w", cell, err)
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flush cell %d: %w", cell, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename cell file: %w", err)
	}
	return nil
}

func (s *ParquetStore) readCell(refcat string, cell uint64) ([]models.CatalogSource, error) {
	f, err := os.Open(s.cellPath(refcat, cell))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open cell %d: %v: %w", cell, err, models.ErrStorageUnavailable)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat cell %d: %v: %w", cell, err, models.ErrStorageUnavailable)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet cell %d: %v: %w", cell, err, models.ErrCorruptSource)
	}

	reader := parquet.NewGenericReader[sourceRow](pf)
	defer reader.Close()

	sources := make([]models.CatalogSource, 0, pf.NumRows())
	for {
		// Fresh buffer per batch: the reader may reuse map values it finds
		// in the destination rows.
		rows := make([]sourceRow, 128)
		n, err := reader.Read(rows)
		for _, row := range rows[:n] {
			sources = append(sources, models.CatalogSource{
				ID:         row.ID,
				RefNumber:  row.RefNumber,
				Position:   models.SkyPoint{RA: row.RA, Dec: row.Dec},
				Cell:       row.Cell,
				Attributes: row.Attributes,
			})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read parquet cell %d: %v: %w", cell, err, models.ErrCorruptSource)
		}
	}
	return sources, nil
}

// Scan reads the cell files of [r.Lo, r.Hi) in order.
func (s *ParquetStore) Scan(ctx context.Context, refcat string, r skybin.CellRange) ([]models.CatalogSource, error) {
	if err := checkRefCat(refcat); err != nil {
		return nil, err
	}

	var sources []models.CatalogSource
	for cell := r.Lo; cell < r.Hi; cell++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := s.readCell(refcat, cell)
		if err != nil {
			return nil, err
		}
		sources = append(sources, found...)
	}
	sortSources(sources)
	return sources, nil
}
