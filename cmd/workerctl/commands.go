package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/workerctl/workerctl"
	"github.com/workerctl/workerctl/internal/logger"
)

// command carries the shared CLI context into every subcommand.
type command struct {
	global *GlobalFlags
}

// loadSystem builds the controller from --config, honoring a --log-level
// override.
func (c command) loadSystem() (*workerctl.System, error) {
	if c.global.ConfigPath == "" {
		return nil, errors.New("--config is required")
	}
	cfg, err := workerctl.LoadConfig(c.global.ConfigPath)
	if err != nil {
		return nil, err
	}
	if c.global.LogLevel != "" {
		cfg.Scheduler.LogLevel = c.global.LogLevel
	}
	logger.Setup(cfg.Scheduler.LogLevel)
	return workerctl.NewSystem(cfg)
}

func (c command) Setup(flags SetupFlags) error {
	if flags.Init {
		if flags.AppDir == "" {
			return errors.New("--app-dir is required with --init")
		}
		path := c.global.ConfigPath
		if path == "" {
			path = filepath.Join(flags.AppDir, "worker_config.json")
			c.global.ConfigPath = path
		}
		cfg := workerctl.CreateDefaultConfig(flags.AppDir, flags.Interpreter)
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote default config: %s\n", path)
	}

	sys, err := c.loadSystem()
	if err != nil {
		return err
	}
	if err := sys.SetupScheduler(flags.Schedule, flags.Aggregate); err != nil {
		return fmt.Errorf("scheduler setup failed: %w", err)
	}
	fmt.Println("Scheduler setup completed")
	for _, job := range sys.Jobs() {
		fmt.Printf("  %s: %s\n", job.Tag, job.Schedule)
	}
	return nil
}

func (c command) Start(worker string) error {
	sys, err := c.loadSystem()
	if err != nil {
		return err
	}
	if worker != "" {
		if err := sys.LaunchWorker(worker); err != nil {
			return err
		}
		fmt.Printf("Started worker: %s\n", worker)
		return nil
	}
	results := sys.LaunchWorkersNow()
	ok, total := countResults(results)
	fmt.Printf("Started %d/%d workers\n", ok, total)
	if ok < total {
		return fmt.Errorf("%d worker(s) failed to start", total-ok)
	}
	return nil
}

func (c command) Stop(worker string, force bool) error {
	sys, err := c.loadSystem()
	if err != nil {
		return err
	}
	if worker != "" {
		if err := sys.StopWorker(worker, force); err != nil {
			return fmt.Errorf("stop %s: %w", worker, err)
		}
		fmt.Printf("Stopped worker: %s\n", worker)
		return nil
	}
	results := sys.StopAllWorkers(force)
	ok, total := countResults(results)
	fmt.Printf("Stopped %d/%d workers\n", ok, total)
	if ok < total {
		return fmt.Errorf("%d worker(s) failed to stop", total-ok)
	}
	return nil
}

func (c command) Restart(worker string, force bool) error {
	sys, err := c.loadSystem()
	if err != nil {
		return err
	}
	if worker != "" {
		if err := sys.RestartWorker(worker); err != nil {
			return err
		}
		fmt.Printf("Restarted worker: %s\n", worker)
		return nil
	}
	sys.StopAllWorkers(force)
	results := sys.LaunchWorkersNow()
	ok, total := countResults(results)
	fmt.Printf("Restarted %d/%d workers\n", ok, total)
	if ok < total {
		return fmt.Errorf("%d worker(s) failed to restart", total-ok)
	}
	return nil
}

func (c command) Status(export string) error {
	sys, err := c.loadSystem()
	if err != nil {
		return err
	}
	sys.PrintComprehensiveStatus(os.Stdout)
	if export != "" {
		if err := sys.ExportStatusReport(export); err != nil {
			return err
		}
		fmt.Printf("\nReport written to %s\n", export)
	}
	return nil
}

func (c command) Config() error {
	sys, err := c.loadSystem()
	if err != nil {
		return err
	}
	sys.Config().PrintSummary(os.Stdout)
	return nil
}

func (c command) Jobs(action string, flags JobsFlags) error {
	sys, err := c.loadSystem()
	if err != nil {
		return err
	}

	if flags.Backup != "" {
		if err := sys.BackupCrontab(flags.Backup); err != nil {
			return err
		}
		fmt.Printf("Crontab backed up to %s\n", flags.Backup)
	}
	if flags.Restore != "" {
		if err := sys.RestoreCrontab(flags.Restore); err != nil {
			return err
		}
		fmt.Printf("Crontab restored from %s\n", flags.Restore)
	}

	switch action {
	case "":
		jobs := sys.Jobs()
		if len(jobs) == 0 {
			fmt.Println("No schedule entries installed")
			return nil
		}
		for _, job := range jobs {
			state := "ENABLED"
			if !job.Enabled {
				state = "DISABLED"
			}
			fmt.Printf("%-8s %-40s %s\n", state, job.Tag, job.Schedule)
		}
	case "enable":
		count, err := sys.EnableAllJobs()
		if err != nil {
			return err
		}
		fmt.Printf("Enabled %d job(s)\n", count)
	case "disable":
		count, err := sys.DisableAllJobs()
		if err != nil {
			return err
		}
		fmt.Printf("Disabled %d job(s)\n", count)
	case "remove":
		count, err := sys.RemoveAllJobs()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d job(s)\n", count)
	default:
		return fmt.Errorf("unknown jobs action: %q (want enable, disable, or remove)", action)
	}
	return nil
}

func (c command) Cleanup() error {
	sys, err := c.loadSystem()
	if err != nil {
		return err
	}
	cleaned := sys.CleanupStale()
	if len(cleaned) == 0 {
		fmt.Println("No stale PID files")
		return nil
	}
	sort.Strings(cleaned)
	for _, name := range cleaned {
		fmt.Printf("Removed stale PID file: %s\n", name)
	}
	return nil
}

func runPlan(flags RunPlanFlags) error {
	results, err := workerctl.RunLaunchPlan(flags.PlanPath, flags.Delay)
	if err != nil {
		return err
	}
	ok, total := countResults(results)
	fmt.Printf("Launch plan completed: %d/%d workers started\n", ok, total)
	if ok < total {
		return fmt.Errorf("%d worker(s) failed to start", total-ok)
	}
	return nil
}

func (c command) Serve(flags ServeFlags) error {
	sys, err := c.loadSystem()
	if err != nil {
		return err
	}
	if flags.StoreDSN != "" {
		if err := sys.OpenEventStore(flags.StoreDSN); err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
	}

	server := workerctl.NewHTTPServer(flags.Listen, flags.BasePath, sys)
	fmt.Printf("Serving workerctl API on %s%s\n", flags.Listen, flags.BasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	return server.Close()
}

func countResults(results map[string]bool) (ok, total int) {
	for _, success := range results {
		total++
		if success {
			ok++
		}
	}
	return ok, total
}
