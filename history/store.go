package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bennhub/playwright-command-center/model"
	json "github.com/goccy/go-json"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists run attempts in a single sqlite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the history database at path.
func OpenStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One connection keeps writes ordered and avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set history db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set history db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS run_attempts (
	id INTEGER PRIMARY KEY,
	spec TEXT NOT NULL,
	project TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	attempt_json TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save inserts or replaces the attempt with the same id.
func (s *SQLiteStore) Save(attempt model.RunAttempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal run attempt: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO run_attempts (id, spec, project, status, started_at, attempt_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 spec = excluded.spec,
		 project = excluded.project,
		 status = excluded.status,
		 started_at = excluded.started_at,
		 attempt_json = excluded.attempt_json,
		 updated_at = excluded.updated_at`,
		attempt.ID,
		attempt.Spec,
		attempt.Project,
		string(attempt.Status),
		attempt.StartedAt.UTC().Format(time.RFC3339Nano),
		string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save run attempt %d: %w", attempt.ID, err)
	}
	return nil
}

// Load returns up to limit attempts, newest first. A limit <= 0 returns all.
func (s *SQLiteStore) Load(limit int) ([]model.RunAttempt, error) {
	query := `SELECT id, attempt_json FROM run_attempts ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run attempts: %w", err)
	}
	defer rows.Close()

	out := make([]model.RunAttempt, 0)
	for rows.Next() {
		var id int64
		var payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan run attempt row: %w", err)
		}
		var attempt model.RunAttempt
		if err := json.Unmarshal([]byte(payload), &attempt); err != nil {
			return nil, fmt.Errorf("unmarshal run attempt %d: %w", id, err)
		}
		attempt.ID = id
		out = append(out, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run attempt rows: %w", err)
	}
	return out, nil
}

// Prune deletes everything but the keep most recent attempts.
func (s *SQLiteStore) Prune(keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.Exec(
		`DELETE FROM run_attempts WHERE id NOT IN (SELECT id FROM run_attempts ORDER BY id DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return fmt.Errorf("prune run attempts: %w", err)
	}
	return nil
}
