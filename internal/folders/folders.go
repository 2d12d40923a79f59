package folders

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/labops/resulttx/internal/core"
)

// Mapping is one row of the folder-mapping table.
type Mapping struct {
	BasePath string
	Hint     string
	Label    string
	Folder   string
}

// Store resolves (base path, hint, label) triples to remote subfolder
// names. Lookups are exact: an unmapped hint is a hard failure, never a
// fallback to a default folder.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// The history store holds a second handle on the same file; the busy
	// timeout rides out the other writer's lock.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", dbPath, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS remote_folder (
		base_path TEXT NOT NULL,
		hint TEXT NOT NULL,
		label TEXT NOT NULL,
		folder TEXT NOT NULL,
		PRIMARY KEY (base_path, hint, label)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Resolve returns the remote subfolder mapped to the triple, or
// core.ErrMappingNotFound. Safe to call repeatedly; no side effects.
func (s *Store) Resolve(basePath, hint, label string) (string, error) {
	row := s.db.QueryRow(
		"SELECT folder FROM remote_folder WHERE base_path = ? AND hint = ? AND label = ?",
		basePath, hint, label)

	var folder string
	if err := row.Scan(&folder); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("%w: base=%s hint=%q label=%s", core.ErrMappingNotFound, basePath, hint, label)
		}
		return "", fmt.Errorf("mapping lookup: %w", err)
	}
	return folder, nil
}

// Put inserts or replaces a mapping row.
func (s *Store) Put(m Mapping) error {
	_, err := s.db.Exec(`
		INSERT INTO remote_folder (base_path, hint, label, folder)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(base_path, hint, label) DO UPDATE SET
			folder = excluded.folder
	`, m.BasePath, m.Hint, m.Label, m.Folder)
	if err != nil {
		return fmt.Errorf("put mapping: %w", err)
	}
	return nil
}

func (s *Store) Remove(basePath, hint, label string) error {
	res, err := s.db.Exec(
		"DELETE FROM remote_folder WHERE base_path = ? AND hint = ? AND label = ?",
		basePath, hint, label)
	if err != nil {
		return fmt.Errorf("remove mapping: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: base=%s hint=%q label=%s", core.ErrMappingNotFound, basePath, hint, label)
	}
	return nil
}

func (s *Store) List() ([]Mapping, error) {
	rows, err := s.db.Query(
		"SELECT base_path, hint, label, folder FROM remote_folder ORDER BY base_path, hint, label")
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.BasePath, &m.Hint, &m.Label, &m.Folder); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
