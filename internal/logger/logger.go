package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for worker log files.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the log destination for a worker process.
// Workers write stdout and stderr to a single combined file
// Dir/<name>.log; rotation follows lumberjack semantics.
type Config struct {
	Dir        string // base directory for worker logs
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // gzip rotated files
}

// WorkerLogPath returns the combined log file path for a worker.
func (c Config) WorkerLogPath(name string) string {
	return filepath.Join(c.Dir, fmt.Sprintf("%s.log", name))
}

// Writer returns an append-mode io.WriteCloser for the worker's log file.
// The directory is created if missing.
func (c Config) Writer(name string) (io.WriteCloser, error) {
	if c.Dir == "" {
		return nil, fmt.Errorf("log dir not configured")
	}
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return nil, err
	}
	return &lj.Logger{
		Filename:   c.WorkerLogPath(name),
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}, nil
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ParseLevel maps a config log level string to a slog.Level.
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs the default slog logger writing colored text to stderr.
func Setup(level string) {
	h := NewColorTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLevel(level)}, true)
	slog.SetDefault(slog.New(h))
}
