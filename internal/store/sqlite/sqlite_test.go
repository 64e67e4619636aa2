package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/workerctl/workerctl/internal/store"
)

func TestSQLiteEvents(t *testing.T) {
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	// schema creation must be idempotent
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema twice: %v", err)
	}

	now := time.Now().UTC()
	if err := db.RecordLaunch(ctx, "fetcher", 1111, now); err != nil {
		t.Fatalf("record launch: %v", err)
	}
	if err := db.RecordStop(ctx, "fetcher", 1111, now.Add(time.Minute), "operator stop"); err != nil {
		t.Fatalf("record stop: %v", err)
	}
	if err := db.RecordLaunch(ctx, "uploader", 2222, now); err != nil {
		t.Fatalf("record launch2: %v", err)
	}

	// filtered by worker, newest first
	events, err := db.Events(ctx, "fetcher", 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Type != store.EventStop || events[0].Detail != "operator stop" {
		t.Fatalf("newest event = %+v", events[0])
	}
	if events[1].Type != store.EventLaunch || events[1].PID != 1111 {
		t.Fatalf("oldest event = %+v", events[1])
	}

	// empty worker matches everything
	all, err := db.Events(ctx, "", 0)
	if err != nil {
		t.Fatalf("all events: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all events = %d, want 3", len(all))
	}

	// limit caps the result
	limited, err := db.Events(ctx, "", 1)
	if err != nil {
		t.Fatalf("limited events: %v", err)
	}
	if len(limited) != 1 || limited[0].Worker != "uploader" {
		t.Fatalf("limited = %+v", limited)
	}
}

func TestSQLiteFileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	db, err := New(path)
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := db.RecordLaunch(ctx, "fetcher", 42, time.Now().UTC()); err != nil {
		t.Fatalf("record launch: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// events survive reopening the file
	db2, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db2.Close() })
	events, err := db2.Events(ctx, "fetcher", 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].PID != 42 {
		t.Fatalf("events = %+v", events)
	}
}

func TestSQLiteEmptyPath(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
