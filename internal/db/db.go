package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusFailed  = "FAILED"
)

// Record is the per-path transfer bookkeeping row. The dispatcher consults
// it to skip paths that keep failing and to report attempt counts.
type Record struct {
	Path       string
	Status     string
	Hint       string
	Folder     string
	SizeBytes  int64
	Attempts   int
	ErrorCount int
	LastError  string
	SentAt     time.Time
}

// History tracks the outcome of every file the agent handles.
type History struct {
	db *sql.DB
}

func Open(dbPath string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// The folder-mapping store holds a second handle on the same file;
	// the busy timeout rides out the other writer's lock.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", dbPath, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS tx_history (
		file_path TEXT PRIMARY KEY,
		status TEXT,
		hint TEXT,
		folder TEXT,
		file_size INTEGER,
		attempts INTEGER DEFAULT 0,
		error_count INTEGER DEFAULT 0,
		last_error TEXT,
		remote_hostname TEXT,
		sent_at INTEGER,
		last_attempt_at INTEGER
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &History{db: db}, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

// Get returns the record for a path, or a zero Record when none exists.
func (h *History) Get(path string) (Record, error) {
	row := h.db.QueryRow(`
		SELECT file_path, status, hint, folder, file_size, attempts, error_count, last_error, sent_at
		FROM tx_history WHERE file_path = ?`, path)

	var r Record
	var hint, folder, lastErr sql.NullString
	var size, sentAt sql.NullInt64
	err := row.Scan(&r.Path, &r.Status, &hint, &folder, &size, &r.Attempts, &r.ErrorCount, &lastErr, &sentAt)
	if err == sql.ErrNoRows {
		return Record{Path: path}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("history read: %w", err)
	}
	r.Hint = hint.String
	r.Folder = folder.String
	r.LastError = lastErr.String
	r.SizeBytes = size.Int64
	if sentAt.Valid {
		r.SentAt = time.Unix(sentAt.Int64, 0)
	}
	return r, nil
}

// ErrorCount returns the consecutive failure count for a path; zero when
// the path has never been seen.
func (h *History) ErrorCount(path string) (int, error) {
	r, err := h.Get(path)
	if err != nil {
		return 0, err
	}
	return r.ErrorCount, nil
}

// RecordSent marks a path successfully transferred and archived, resetting
// its error count.
func (h *History) RecordSent(path, hint, folder, remoteHost string, size int64, attempts int) error {
	_, err := h.db.Exec(`
		INSERT INTO tx_history (file_path, status, hint, folder, file_size, attempts, error_count, last_error, remote_hostname, sent_at, last_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, '', ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			status = excluded.status,
			hint = excluded.hint,
			folder = excluded.folder,
			file_size = excluded.file_size,
			attempts = excluded.attempts,
			error_count = 0,
			last_error = '',
			remote_hostname = excluded.remote_hostname,
			sent_at = excluded.sent_at,
			last_attempt_at = excluded.last_attempt_at
	`, path, StatusSent, hint, folder, size, attempts, remoteHost, time.Now().Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("history write: %w", err)
	}
	return nil
}

// RecordFailure marks a path failed with a reason and bumps its persistent
// error count.
func (h *History) RecordFailure(path, hint, reason string, attempts int) error {
	_, err := h.db.Exec(`
		INSERT INTO tx_history (file_path, status, hint, attempts, error_count, last_error, last_attempt_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			status = excluded.status,
			hint = excluded.hint,
			attempts = excluded.attempts,
			error_count = tx_history.error_count + 1,
			last_error = excluded.last_error,
			last_attempt_at = excluded.last_attempt_at
	`, path, StatusFailed, hint, attempts, reason, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("history write: %w", err)
	}
	return nil
}

// Reset clears history for one path, or everything when path is empty.
func (h *History) Reset(path string) error {
	var err error
	if path != "" {
		_, err = h.db.Exec("DELETE FROM tx_history WHERE file_path = ?", path)
	} else {
		_, err = h.db.Exec("DELETE FROM tx_history")
	}
	if err != nil {
		return fmt.Errorf("history reset: %w", err)
	}
	return nil
}

// List returns all records, most recently attempted first.
func (h *History) List() ([]Record, error) {
	rows, err := h.db.Query(`
		SELECT file_path, status, hint, folder, file_size, attempts, error_count, last_error, sent_at
		FROM tx_history ORDER BY last_attempt_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("history list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var hint, folder, lastErr sql.NullString
		var size, sentAt sql.NullInt64
		if err := rows.Scan(&r.Path, &r.Status, &hint, &folder, &size, &r.Attempts, &r.ErrorCount, &lastErr, &sentAt); err != nil {
			return nil, err
		}
		r.Hint = hint.String
		r.Folder = folder.String
		r.LastError = lastErr.String
		r.SizeBytes = size.Int64
		if sentAt.Valid {
			r.SentAt = time.Unix(sentAt.Int64, 0)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
