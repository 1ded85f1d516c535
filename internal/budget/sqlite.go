package budget

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store (and ConditionalStore) on a local SQLite
// file. Kiosks without a network connection run against this, and tests use
// it as a real store without a remote. Documents are stored one row per
// field with JSON-encoded values.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed document store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		path   TEXT NOT NULL,
		field  TEXT NOT NULL,
		value  TEXT NOT NULL,
		PRIMARY KEY (path, field)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the document at path, or ErrNotFound if no fields exist.
func (s *SQLiteStore) Get(ctx context.Context, path string) (Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT field, value FROM documents WHERE path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	defer func() { _ = rows.Close() }()

	doc := Document{}
	for rows.Next() {
		var field, raw string
		if err := rows.Scan(&field, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", path, err)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", path, field, err)
		}
		doc[field] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", path, err)
	}
	if len(doc) == 0 {
		return nil, ErrNotFound
	}
	return doc, nil
}

// Update merges fields into the document at path, creating rows as needed.
func (s *SQLiteStore) Update(ctx context.Context, path string, fields map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update %s: %w", path, err)
	}
	defer func() { _ = tx.Rollback() }()

	for field, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s.%s: %w", path, field, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents (path, field, value) VALUES (?, ?, ?)
			 ON CONFLICT(path, field) DO UPDATE SET value = excluded.value`,
			path, field, string(raw))
		if err != nil {
			return fmt.Errorf("write %s.%s: %w", path, field, err)
		}
	}
	return tx.Commit()
}

// UpdateFieldIf writes value to a numeric field only if the stored value
// still equals expect, inside a single transaction. Returns ErrConflict when
// another writer got there first.
func (s *SQLiteStore) UpdateFieldIf(ctx context.Context, path, field string, expect, value float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin conditional update %s: %w", path, err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM documents WHERE path = ? AND field = ?`, path, field).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("read %s.%s: %w", path, field, err)
	}

	var current float64
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return fmt.Errorf("decode %s.%s: %w", path, field, err)
	}
	if math.Abs(current-expect) > 1e-9 {
		return ErrConflict
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s.%s: %w", path, field, err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET value = ? WHERE path = ? AND field = ?`,
		string(encoded), path, field)
	if err != nil {
		return fmt.Errorf("write %s.%s: %w", path, field, err)
	}
	return tx.Commit()
}
