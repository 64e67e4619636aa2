package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/workerctl/workerctl/internal/store"
)

// DB implements store.Store for PostgreSQL via the pgx stdlib driver.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS worker_events(
			id BIGSERIAL PRIMARY KEY,
			worker TEXT NOT NULL,
			pid INTEGER NOT NULL,
			event TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_events_worker ON worker_events(worker);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_events_occurred ON worker_events(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) RecordLaunch(ctx context.Context, worker string, pid int, at time.Time) error {
	return p.insert(ctx, worker, pid, store.EventLaunch, at, "")
}

func (p *DB) RecordStop(ctx context.Context, worker string, pid int, at time.Time, detail string) error {
	return p.insert(ctx, worker, pid, store.EventStop, at, detail)
}

func (p *DB) insert(ctx context.Context, worker string, pid int, event string, at time.Time, detail string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO worker_events(worker, pid, event, occurred_at, detail) VALUES($1,$2,$3,$4,$5)`,
		worker, pid, event, at.UTC(), detail)
	return err
}

func (p *DB) Events(ctx context.Context, worker string, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, worker, pid, event, occurred_at, detail FROM worker_events
		 WHERE ($1 = '' OR worker = $1) ORDER BY id DESC LIMIT $2`,
		worker, limit)
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

func (p *DB) Close() error { return p.db.Close() }
