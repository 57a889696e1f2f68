// Package sqlite is a transcript.Store on an embedded SQLite database
// (pure Go driver, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/transcript"
	_ "modernc.org/sqlite"
)

// Store implements transcript.Store.
type Store struct {
	db *sql.DB
}

var _ transcript.Store = (*Store)(nil)

// New opens (and migrates) the database at path. ":memory:" is accepted
// for tests.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS transcripts (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			pipeline    TEXT NOT NULL,
			task        TEXT NOT NULL,
			result      TEXT NOT NULL,
			status      TEXT NOT NULL,
			degraded    BOOLEAN DEFAULT FALSE,
			reason      TEXT,
			messages    TEXT NOT NULL,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_pipeline ON transcripts(pipeline, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save inserts or replaces rec.
func (s *Store) Save(ctx context.Context, rec transcript.Record) error {
	rec = transcript.Normalize(rec)
	msgs, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO transcripts
			(id, session_id, pipeline, task, result, status, degraded, reason, messages, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Pipeline, rec.Task, rec.Result, rec.Status.String(),
		rec.Degraded, rec.Reason, string(msgs), rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save transcript %s: %w", rec.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, session_id, pipeline, task, result, status, degraded, reason, messages, created_at FROM transcripts`

// Get returns one record.
func (s *Store) Get(ctx context.Context, id string) (transcript.Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return transcript.Record{}, transcript.ErrNotFound
	}
	return rec, err
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, pipeline string, limit int) ([]transcript.Record, error) {
	query := selectColumns
	var args []any
	if pipeline != "" {
		query += ` WHERE pipeline = ?`
		args = append(args, pipeline)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var out []transcript.Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes records created before olderThan.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE created_at < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune transcripts: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (transcript.Record, error) {
	var (
		rec      transcript.Record
		status   string
		reason   sql.NullString
		messages string
		created  int64
	)
	if err := sc.Scan(&rec.ID, &rec.SessionID, &rec.Pipeline, &rec.Task, &rec.Result,
		&status, &rec.Degraded, &reason, &messages, &created); err != nil {
		return transcript.Record{}, err
	}
	if err := json.Unmarshal([]byte(messages), &rec.Messages); err != nil {
		return transcript.Record{}, fmt.Errorf("decode messages of %s: %w", rec.ID, err)
	}
	rec.Status = core.ParseStatus(status)
	rec.Reason = reason.String
	rec.CreatedAt = time.Unix(0, created).UTC()
	return rec, nil
}
