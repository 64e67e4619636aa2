package procmgr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/workerctl/workerctl/internal/config"
	"github.com/workerctl/workerctl/internal/launcher"
	"github.com/workerctl/workerctl/internal/logger"
	"github.com/workerctl/workerctl/internal/metrics"
	"github.com/workerctl/workerctl/internal/monitor"
	"github.com/workerctl/workerctl/internal/pidfile"
	"github.com/workerctl/workerctl/internal/store"
	"github.com/workerctl/workerctl/internal/terminator"
)

// restartPause gives the OS a moment to release resources between the stop
// and the relaunch of a worker.
const restartPause = 1 * time.Second

// Manager is the facade over PID files, monitoring, launching, and
// termination for the whole fleet.
type Manager struct {
	pids *pidfile.Manager
	mon  *monitor.Monitor
	ln   *launcher.Launcher
	term *terminator.Terminator
	st   store.Store
}

// New builds a Manager rooted at logDir, which holds worker logs and PID
// files alike.
func New(logDir string) *Manager {
	pids := pidfile.New(logDir)
	return &Manager{
		pids: pids,
		mon:  monitor.New(pids),
		ln:   launcher.New(pids, logger.Config{Dir: logDir}),
		term: terminator.New(pids),
	}
}

// SetStore attaches an optional lifecycle event store and ensures its
// schema. A nil store disables recording.
func (m *Manager) SetStore(s store.Store) error {
	m.st = s
	if s == nil {
		return nil
	}
	return s.EnsureSchema(context.Background())
}

// Launcher exposes the underlying launcher, e.g. for single launches.
func (m *Manager) Launcher() *launcher.Launcher { return m.ln }

// LaunchWorkers launches the given workers in order with the default
// inter-launch delay. Best-effort: per-worker results, never all-or-nothing.
func (m *Manager) LaunchWorkers(cfg *config.Config, workers []config.Worker) map[string]bool {
	results := make(map[string]bool, len(workers))
	first := true
	for _, w := range workers {
		if !w.Enabled {
			results[w.Name] = false
			continue
		}
		if !first {
			time.Sleep(launcher.DefaultLaunchDelay)
		}
		first = false
		pid, err := m.ln.Launch(w, cfg.Scheduler.InterpreterPath, cfg.Scheduler.AppDir, cfg.MergeEnv(w))
		if err != nil {
			slog.Error("launch failed", "worker", w.Name, "error", err)
			results[w.Name] = false
			continue
		}
		m.recordLaunch(w.Name, pid)
		metrics.IncLaunch(w.Name)
		results[w.Name] = true
	}
	return results
}

// GetStatus snapshots a single worker.
func (m *Manager) GetStatus(name string) monitor.Info { return m.mon.Status(name) }

// GetAllStatuses snapshots every named worker.
func (m *Manager) GetAllStatuses(names []string) map[string]monitor.Info {
	return m.mon.StatusAll(names)
}

// Stop terminates a worker, gracefully unless force is set.
func (m *Manager) Stop(name string, force bool) error {
	return m.StopTimeout(name, force, terminator.DefaultTimeout)
}

// StopTimeout terminates a worker with an explicit grace period.
func (m *Manager) StopTimeout(name string, force bool, timeout time.Duration) error {
	pid, _ := m.pids.Load(name)
	err := m.term.Terminate(name, force, timeout)
	if err == nil && pid > 0 {
		m.recordStop(name, pid, "")
		metrics.IncStop(name)
	}
	return err
}

// StopAll terminates every named worker, best-effort.
func (m *Manager) StopAll(names []string, force bool) map[string]bool {
	results := make(map[string]bool, len(names))
	for _, name := range names {
		results[name] = m.Stop(name, force) == nil
	}
	return results
}

// Restart stops a worker and launches it again. Liveness is re-checked by
// the terminate itself; a worker that was not running simply gets launched.
func (m *Manager) Restart(cfg *config.Config, w config.Worker) error {
	if err := m.Stop(w.Name, false); err != nil {
		return fmt.Errorf("restart %s: %w", w.Name, err)
	}
	time.Sleep(restartPause)
	pid, err := m.ln.Launch(w, cfg.Scheduler.InterpreterPath, cfg.Scheduler.AppDir, cfg.MergeEnv(w))
	if err != nil {
		return fmt.Errorf("restart %s: %w", w.Name, err)
	}
	m.recordLaunch(w.Name, pid)
	metrics.IncRestart(w.Name)
	return nil
}

// CleanupStale removes PID files whose processes are gone.
func (m *Manager) CleanupStale() []string {
	cleaned := m.pids.CleanupStale()
	m.mon.InvalidateGone()
	return cleaned
}

func (m *Manager) recordLaunch(name string, pid int) {
	if m.st == nil {
		return
	}
	if err := m.st.RecordLaunch(context.Background(), name, pid, time.Now()); err != nil {
		slog.Warn("record launch event", "worker", name, "error", err)
	}
}

func (m *Manager) recordStop(name string, pid int, detail string) {
	if m.st == nil {
		return
	}
	if err := m.st.RecordStop(context.Background(), name, pid, time.Now(), detail); err != nil {
		slog.Warn("record stop event", "worker", name, "error", err)
	}
}
