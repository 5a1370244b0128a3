package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kilupskalvis/dasch-science/internal/models"
	"github.com/kilupskalvis/dasch-science/internal/skybin"
)

// SQLiteStore keeps all catalogs in one table indexed by (refcat, cell).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite catalog and its schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)")
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %v: %w", err, models.ErrStorageUnavailable)
	}

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS catalog_sources (
		refcat TEXT NOT NULL,
		cell INTEGER NOT NULL,
		id TEXT NOT NULL,
		ref_number INTEGER NOT NULL DEFAULT 0,
		ra REAL NOT NULL,
		dec REAL NOT NULL,
		attributes JSON,
		PRIMARY KEY (refcat, cell, id)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create catalog schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put inserts or replaces sources in one transaction.
func (s *SQLiteStore) Put(ctx context.Context, refcat string, sources []models.CatalogSource) error {
	if err := checkRefCat(refcat); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO catalog_sources (refcat, cell, id, ref_number, ra, dec, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, src := range sources {
		var attrs []byte
		if len(src.Attributes) > 0 {
			if attrs, err = json.Marshal(src.Attributes); err != nil {
				return fmt.Errorf("marshal attributes of %s: %w", src.ID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, refcat, int64(src.Cell), src.ID, int64(src.RefNumber),
			src.Position.RA, src.Position.Dec, attrs); err != nil {
			return fmt.Errorf("insert source %s: %w", src.ID, err)
		}
	}

	return tx.Commit()
}

// Scan selects the rows of cells [r.Lo, r.Hi) through the primary key index.
func (s *SQLiteStore) Scan(ctx context.Context, refcat string, r skybin.CellRange) ([]models.CatalogSource, error) {
	if err := checkRefCat(refcat); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cell, id, ref_number, ra, dec, attributes
		FROM catalog_sources
		WHERE refcat = ? AND cell >= ? AND cell < ?
		ORDER BY cell, id`, refcat, int64(r.Lo), int64(r.Hi))
	if err != nil {
		return nil, readErr(ctx, "query catalog", err)
	}
	defer rows.Close()

	var sources []models.CatalogSource
	for rows.Next() {
		var (
			src   models.CatalogSource
			cell  int64
			ref   int64
			attrs sql.NullString
		)
		if err := rows.Scan(&cell, &src.ID, &ref, &src.Position.RA, &src.Position.Dec, &attrs); err != nil {
			return nil, fmt.Errorf("scan source: %v: %w", err, models.ErrCorruptSource)
		}
		src.Cell = uint64(cell)
		src.RefNumber = uint64(ref)
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &src.Attributes); err != nil {
				return nil, fmt.Errorf("unmarshal attributes of %s: %v: %w", src.ID, err, models.ErrCorruptSource)
			}
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr(ctx, "iterate catalog", err)
	}
	return sources, nil
}

// readErr reports a failed read as the context's error when the context is
// done, since database/sql surfaces a cancellation mid-query as a plain
// driver or iteration error.
func readErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%s: %v: %w", op, err, models.ErrStorageUnavailable)
}
