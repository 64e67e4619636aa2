package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/workerctl/workerctl/internal/config"
	"github.com/workerctl/workerctl/internal/crontab"
	"github.com/workerctl/workerctl/internal/launcher"
	"github.com/workerctl/workerctl/internal/monitor"
	"github.com/workerctl/workerctl/internal/procmgr"
	"github.com/workerctl/workerctl/internal/store"
)

// masterTag is the tag suffix of the single aggregate-mode job.
const masterTag = "Master"

// System wires configuration, process management, and the host job table
// into one controller for the worker fleet.
type System struct {
	cfg     *config.Config
	cfgPath string
	pm      *procmgr.Manager
	cron    *crontab.Manager
}

// New builds a System from an already loaded configuration. The
// configuration must validate; log directory is created on the spot.
func New(cfg *config.Config, sys crontab.System) (*System, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	if err := os.MkdirAll(cfg.Scheduler.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	cron, err := crontab.New(sys)
	if err != nil {
		return nil, err
	}
	return &System{
		cfg:  cfg,
		pm:   procmgr.New(cfg.Scheduler.LogDir),
		cron: cron,
	}, nil
}

// NewFromFile loads the configuration at path and builds a System that
// talks to the caller's real crontab.
func NewFromFile(path string) (*System, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	s, err := New(cfg, crontab.NewExecSystem(cfg.Scheduler.Identity))
	if err != nil {
		return nil, err
	}
	s.cfgPath = path
	return s, nil
}

// Config exposes the active configuration.
func (s *System) Config() *config.Config { return s.cfg }

// SetStore attaches a lifecycle event store to the process layer.
func (s *System) SetStore(st store.Store) error { return s.pm.SetStore(st) }

// ProcessManager exposes the underlying process layer.
func (s *System) ProcessManager() *procmgr.Manager { return s.pm }

// Tag returns the schedule-table tag owned by the named worker.
func (s *System) Tag(worker string) string {
	return s.cfg.Scheduler.TagPrefix + "_" + worker
}

// SetupScheduler replaces this system's entries in the host job table.
// Previously installed entries under the tag prefix are removed first, so
// repeated calls never leave duplicates or stale jobs behind. An empty
// schedule falls back to the configured default; aggregate selects one
// master job over per-worker jobs.
func (s *System) SetupScheduler(sched string, aggregate bool) error {
	if strings.TrimSpace(sched) == "" {
		sched = s.cfg.Scheduler.DefaultSchedule
	}
	slog.Info("setting up scheduler", "schedule", sched, "aggregate", aggregate)

	removed := s.cron.RemoveJobsByPrefix(s.cfg.Scheduler.TagPrefix)
	if removed > 0 {
		slog.Info("removed previous schedule entries", "count", removed)
	}

	var err error
	if aggregate {
		err = s.installMasterJob(sched)
	} else {
		err = s.installIndividualJobs(sched)
	}
	if err != nil {
		return err
	}
	return s.cron.WriteChanges()
}

func (s *System) installIndividualJobs(sched string) error {
	for _, w := range s.cfg.EnabledWorkers() {
		command := s.cfg.Scheduler.InterpreterPath + " " + s.cfg.ScriptPath(w)
		if err := s.cron.CreateJob(command, sched, s.Tag(w.Name), s.cfg.MergeEnv(w), true); err != nil {
			return fmt.Errorf("install job for %s: %w", w.Name, err)
		}
		slog.Info("installed worker job", "worker", w.Name)
	}
	return nil
}

// installMasterJob writes the launch plan next to the app and schedules
// this executable to replay it.
func (s *System) installMasterJob(sched string) error {
	plan := launcher.BuildPlan(s.cfg)
	planPath := filepath.Join(s.cfg.Scheduler.AppDir, launcher.PlanFileName)
	if err := plan.Save(planPath); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}
	command := fmt.Sprintf("%s run-plan --plan %s", exe, planPath)
	tag := s.cfg.Scheduler.TagPrefix + "_" + masterTag
	if err := s.cron.CreateJob(command, sched, tag, s.cfg.GlobalEnv, true); err != nil {
		return fmt.Errorf("install master job: %w", err)
	}
	slog.Info("installed master job", "plan", planPath, "workers", len(plan.Workers))
	return nil
}

// LaunchWorkersNow bypasses the schedule table and launches every enabled
// worker immediately. Disabled workers appear in the result as false.
func (s *System) LaunchWorkersNow() map[string]bool {
	return s.pm.LaunchWorkers(s.cfg, s.cfg.Workers)
}

// LaunchWorker launches one worker by name regardless of the schedule.
func (s *System) LaunchWorker(name string) error {
	w, ok := s.cfg.GetWorker(name)
	if !ok {
		return fmt.Errorf("%w: %s", config.ErrWorkerNotFound, name)
	}
	results := s.pm.LaunchWorkers(s.cfg, []config.Worker{w})
	if !results[name] {
		return fmt.Errorf("launch %s failed", name)
	}
	return nil
}

// StopWorker terminates one worker.
func (s *System) StopWorker(name string, force bool) error {
	return s.pm.Stop(name, force)
}

// StopAllWorkers terminates every configured worker, best-effort.
func (s *System) StopAllWorkers(force bool) map[string]bool {
	return s.pm.StopAll(s.cfg.WorkerNames(), force)
}

// RestartWorker stops and relaunches one worker.
func (s *System) RestartWorker(name string) error {
	w, ok := s.cfg.GetWorker(name)
	if !ok {
		return fmt.Errorf("%w: %s", config.ErrWorkerNotFound, name)
	}
	return s.pm.Restart(s.cfg, w)
}

// WorkerStatuses snapshots every configured worker.
func (s *System) WorkerStatuses() map[string]monitor.Info {
	return s.pm.GetAllStatuses(s.cfg.WorkerNames())
}

// Jobs lists the schedule entries this system owns.
func (s *System) Jobs() []crontab.Info {
	return s.cron.ListJobs(s.cfg.Scheduler.TagPrefix)
}

// EnableAllJobs enables every owned schedule entry and commits.
func (s *System) EnableAllJobs() (int, error) {
	count := s.cron.EnableJobs(s.cfg.Scheduler.TagPrefix)
	return count, s.cron.WriteChanges()
}

// DisableAllJobs disables every owned schedule entry and commits.
func (s *System) DisableAllJobs() (int, error) {
	count := s.cron.DisableJobs(s.cfg.Scheduler.TagPrefix)
	return count, s.cron.WriteChanges()
}

// RemoveAllJobs removes every owned schedule entry and commits.
func (s *System) RemoveAllJobs() (int, error) {
	count := s.cron.RemoveJobsByPrefix(s.cfg.Scheduler.TagPrefix)
	return count, s.cron.WriteChanges()
}

// BackupCrontab writes the whole staged table to a file.
func (s *System) BackupCrontab(path string) error { return s.cron.Backup(path) }

// RestoreCrontab stages a backup file and commits it.
func (s *System) RestoreCrontab(path string) error {
	if err := s.cron.Restore(path); err != nil {
		return err
	}
	return s.cron.WriteChanges()
}

// SaveConfig persists the active configuration. An empty path reuses the
// file the configuration was loaded from.
func (s *System) SaveConfig(path string) error {
	if path == "" {
		path = s.cfgPath
	}
	if path == "" {
		return errors.New("no configuration path to save to")
	}
	return s.cfg.Save(path)
}

// CleanupStale removes PID files of workers that are no longer alive.
func (s *System) CleanupStale() []string { return s.pm.CleanupStale() }
