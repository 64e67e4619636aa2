package workerctl

import (
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/workerctl/workerctl/internal/config"
	"github.com/workerctl/workerctl/internal/crontab"
	"github.com/workerctl/workerctl/internal/launcher"
	"github.com/workerctl/workerctl/internal/metrics"
	"github.com/workerctl/workerctl/internal/monitor"
	"github.com/workerctl/workerctl/internal/orchestrator"
	iapi "github.com/workerctl/workerctl/internal/server"
	"github.com/workerctl/workerctl/internal/store"
	"github.com/workerctl/workerctl/internal/store/factory"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type Worker = config.Worker

type Identity = config.Identity

type WorkerStatus = monitor.Info

type CronJobInfo = crontab.Info

type LaunchPlan = launcher.Plan

type Stats = orchestrator.Stats

// System is a thin facade over internal/orchestrator.System.
// It provides a stable public API for embedding.

type System struct{ inner *orchestrator.System }

// NewSystem builds a controller from an in-memory configuration, talking
// to the configured identity's real crontab.
func NewSystem(cfg *Config) (*System, error) {
	inner, err := orchestrator.New(cfg, crontab.NewExecSystem(cfg.Scheduler.Identity))
	if err != nil {
		return nil, err
	}
	return &System{inner: inner}, nil
}

// NewSystemFromFile loads the configuration file at path first.
func NewSystemFromFile(path string) (*System, error) {
	inner, err := orchestrator.NewFromFile(path)
	if err != nil {
		return nil, err
	}
	return &System{inner: inner}, nil
}

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// CreateDefaultConfig builds the stock configuration for a worker app
// rooted at appDir.
func CreateDefaultConfig(appDir, interpreter string) *Config {
	return config.CreateDefault(appDir, interpreter)
}

func (s *System) Config() *Config { return s.inner.Config() }

func (s *System) SetupScheduler(schedule string, aggregate bool) error {
	return s.inner.SetupScheduler(schedule, aggregate)
}

func (s *System) LaunchWorkersNow() map[string]bool { return s.inner.LaunchWorkersNow() }
func (s *System) LaunchWorker(name string) error    { return s.inner.LaunchWorker(name) }
func (s *System) StopWorker(name string, force bool) error {
	return s.inner.StopWorker(name, force)
}
func (s *System) StopAllWorkers(force bool) map[string]bool { return s.inner.StopAllWorkers(force) }
func (s *System) RestartWorker(name string) error           { return s.inner.RestartWorker(name) }
func (s *System) WorkerStatuses() map[string]WorkerStatus   { return s.inner.WorkerStatuses() }
func (s *System) Jobs() []CronJobInfo                       { return s.inner.Jobs() }
func (s *System) EnableAllJobs() (int, error)               { return s.inner.EnableAllJobs() }
func (s *System) DisableAllJobs() (int, error)              { return s.inner.DisableAllJobs() }
func (s *System) RemoveAllJobs() (int, error)               { return s.inner.RemoveAllJobs() }
func (s *System) BackupCrontab(path string) error           { return s.inner.BackupCrontab(path) }
func (s *System) RestoreCrontab(path string) error          { return s.inner.RestoreCrontab(path) }
func (s *System) SaveConfig(path string) error              { return s.inner.SaveConfig(path) }
func (s *System) CleanupStale() []string                    { return s.inner.CleanupStale() }
func (s *System) GetSystemStats() Stats                     { return s.inner.GetSystemStats() }

// PrintComprehensiveStatus writes the full operator report to w.
func (s *System) PrintComprehensiveStatus(w io.Writer) { s.inner.PrintComprehensiveStatus(w) }

// ExportStatusReport writes a JSON fleet snapshot to path.
func (s *System) ExportStatusReport(path string) error {
	_, err := s.inner.ProcessManager().ExportStatusReport(s.inner.Config().WorkerNames(), path)
	return err
}

// OpenEventStore attaches a lifecycle event store selected by DSN
// (sqlite path, sqlite://, postgres://).
func (s *System) OpenEventStore(dsn string) error {
	st, err := factory.NewFromDSN(dsn)
	if err != nil {
		return err
	}
	return s.inner.SetStore(st)
}

// SetEventStore attaches an already constructed store.
func (s *System) SetEventStore(st store.Store) error { return s.inner.SetStore(st) }

// RunLaunchPlan replays a saved launch plan with the given delay between
// workers. A zero delay uses the default.
func RunLaunchPlan(path string, delay time.Duration) (map[string]bool, error) {
	plan, err := launcher.LoadPlan(path)
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		delay = launcher.DefaultLaunchDelay
	}
	return launcher.RunPlan(plan, delay), nil
}

// NewHTTPServer starts the read-only HTTP API on addr for this system.
func NewHTTPServer(addr, basePath string, s *System) *http.Server {
	return iapi.NewServer(addr, basePath, s.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
