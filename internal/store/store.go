package store

import (
	"context"
	"time"
)

// Event types recorded for a worker.
const (
	EventLaunch = "launch"
	EventStop   = "stop"
)

// Event is one recorded lifecycle transition for a worker. Events are an
// audit trail only; nothing reads them back to drive behavior.
type Event struct {
	ID         int64
	Worker     string
	PID        int
	Type       string
	OccurredAt time.Time
	Detail     string
}

// Store persists worker lifecycle events.
type Store interface {
	EnsureSchema(ctx context.Context) error
	RecordLaunch(ctx context.Context, worker string, pid int, at time.Time) error
	RecordStop(ctx context.Context, worker string, pid int, at time.Time, detail string) error
	Events(ctx context.Context, worker string, limit int) ([]Event, error)
	Close() error
}
