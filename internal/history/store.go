// Package history keeps past prediction results in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/a3tai/cardiopredict/internal/predict"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS predictions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	email      TEXT NOT NULL,
	session_id TEXT NOT NULL,
	disease    TEXT NOT NULL,
	score      REAL NOT NULL,
	risk       TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_email ON predictions(email, id);
`

// Entry is one stored per-disease prediction
type Entry struct {
	ID        int64
	Email     string
	SessionID string
	Disease   string
	Score     float64
	Risk      predict.RiskCategory
	CreatedAt time.Time
}

// Store persists prediction history
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the history database at path and runs migrations.
// The parent directory is created if needed.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}

	var v int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case v != schemaVersion:
		return fmt.Errorf("unknown history schema version %d", v)
	}
	return nil
}

// Record stores every successful disease prediction in result. Per-disease errors
// are not stored. It returns the number of rows written.
func (s *Store) Record(ctx context.Context, email, sessionID string, result *predict.Result) (int, error) {
	if email == "" {
		return 0, errors.New("history: email is required")
	}
	if result == nil {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO predictions(email, session_id, disease, score, risk, created_at) VALUES(?, ?, ?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("prepare history insert: %w", err)
	}
	defer stmt.Close()

	created := s.now().Format(time.RFC3339Nano)
	n := 0
	for _, d := range result.Succeeded() {
		if _, err := stmt.ExecContext(ctx, email, sessionID, d.Disease, d.Score, string(d.Risk), created); err != nil {
			return 0, fmt.Errorf("insert %s: %w", d.Disease, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit history tx: %w", err)
	}
	return n, nil
}

// List returns up to limit entries for email, newest first. A limit of zero or
// less returns everything.
func (s *Store) List(ctx context.Context, email string, limit int) ([]Entry, error) {
	query := "SELECT id, email, session_id, disease, score, risk, created_at FROM predictions WHERE email = ? ORDER BY id DESC"
	args := []any{email}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var risk, created string
		if err := rows.Scan(&e.ID, &e.Email, &e.SessionID, &e.Disease, &e.Score, &risk, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Risk = predict.RiskCategory(risk)
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return entries, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
