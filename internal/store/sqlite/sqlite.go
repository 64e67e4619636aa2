package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/workerctl/workerctl/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// The DSN is a filesystem path; use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS worker_events(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			worker TEXT NOT NULL,
			pid INTEGER NOT NULL,
			event TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_events_worker ON worker_events(worker);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_events_occurred ON worker_events(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) RecordLaunch(ctx context.Context, worker string, pid int, at time.Time) error {
	return s.insert(ctx, worker, pid, store.EventLaunch, at, "")
}

func (s *DB) RecordStop(ctx context.Context, worker string, pid int, at time.Time, detail string) error {
	return s.insert(ctx, worker, pid, store.EventStop, at, detail)
}

func (s *DB) insert(ctx context.Context, worker string, pid int, event string, at time.Time, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO worker_events(worker, pid, event, occurred_at, detail) VALUES(?,?,?,?,?)`,
		worker, pid, event, at.UTC(), detail)
	return err
}

func (s *DB) Events(ctx context.Context, worker string, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, worker, pid, event, occurred_at, detail FROM worker_events
		 WHERE (? = '' OR worker = ?) ORDER BY id DESC LIMIT ?`,
		worker, worker, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []store.Event
	for rows.Next() {
		var ev store.Event
		if err := rows.Scan(&ev.ID, &ev.Worker, &ev.PID, &ev.Type, &ev.OccurredAt, &ev.Detail); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *DB) Close() error { return s.db.Close() }
