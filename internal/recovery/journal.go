package recovery

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists the set of printers this process has paused at the queue
// level. It exists for the one failure the in-process exit handler cannot
// cover: a hard crash where no handler runs. The next process start sweeps
// the journal and resumes anything left behind.
type Journal interface {
	Record(printer string) error
	Remove(printer string) error
	List() ([]string, error)
}

// SQLiteJournal implements Journal on a local SQLite file.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the journal database.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS paused_printers (
		printer    TEXT PRIMARY KEY,
		paused_at  DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func (j *SQLiteJournal) Record(printer string) error {
	_, err := j.db.Exec(
		`INSERT INTO paused_printers (printer, paused_at) VALUES (?, ?)
		 ON CONFLICT(printer) DO UPDATE SET paused_at = excluded.paused_at`,
		printer, time.Now().UTC())
	return err
}

func (j *SQLiteJournal) Remove(printer string) error {
	_, err := j.db.Exec(`DELETE FROM paused_printers WHERE printer = ?`, printer)
	return err
}

func (j *SQLiteJournal) List() ([]string, error) {
	rows, err := j.db.Query(`SELECT printer FROM paused_printers ORDER BY paused_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var printers []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}
