package orchestrator

import (
	"fmt"
	"io"

	"github.com/workerctl/workerctl/internal/procmgr"
	"github.com/workerctl/workerctl/internal/schedule"
)

// CronStats counts this system's schedule-table entries.
type CronStats struct {
	TotalJobs    int `json:"total_jobs"`
	EnabledJobs  int `json:"enabled_jobs"`
	DisabledJobs int `json:"disabled_jobs"`
}

// WorkerStats counts configured workers.
type WorkerStats struct {
	TotalWorkers    int `json:"total_workers"`
	EnabledWorkers  int `json:"enabled_workers"`
	DisabledWorkers int `json:"disabled_workers"`
}

// Stats merges process, schedule, and configuration views of the fleet.
type Stats struct {
	Process procmgr.SystemStats `json:"process_stats"`
	Cron    CronStats           `json:"cron_stats"`
	Workers WorkerStats         `json:"worker_stats"`
}

// GetSystemStats builds a combined snapshot.
func (s *System) GetSystemStats() Stats {
	stats := Stats{
		Process: s.pm.GetSystemStats(s.cfg.WorkerNames()),
	}

	for _, job := range s.Jobs() {
		stats.Cron.TotalJobs++
		if job.Enabled {
			stats.Cron.EnabledJobs++
		} else {
			stats.Cron.DisabledJobs++
		}
	}

	stats.Workers.TotalWorkers = len(s.cfg.Workers)
	stats.Workers.EnabledWorkers = len(s.cfg.EnabledWorkers())
	stats.Workers.DisabledWorkers = stats.Workers.TotalWorkers - stats.Workers.EnabledWorkers
	return stats
}

// PrintComprehensiveStatus writes the full operator report: configuration,
// worker table, process snapshot, schedule entries, and totals.
func (s *System) PrintComprehensiveStatus(w io.Writer) {
	sc := s.cfg.Scheduler

	fmt.Fprintln(w, "System Configuration:")
	fmt.Fprintf(w, "  App Directory: %s\n", sc.AppDir)
	fmt.Fprintf(w, "  Interpreter:   %s\n", sc.InterpreterPath)
	fmt.Fprintf(w, "  Log Directory: %s\n", sc.LogDir)
	fmt.Fprintf(w, "  Identity:      %s\n", sc.Identity)
	fmt.Fprintf(w, "  Tag Prefix:    %s\n", sc.TagPrefix)

	fmt.Fprintf(w, "\nWorkers (%d total):\n", len(s.cfg.Workers))
	for _, worker := range s.cfg.Workers {
		state := "ENABLED"
		if !worker.Enabled {
			state = "DISABLED"
		}
		fmt.Fprintf(w, "  %-24s %-8s %s\n", worker.Name, state, worker.Script)
	}

	fmt.Fprintln(w, "\nProcess Status:")
	s.pm.PrintStatusSummary(w, s.cfg.WorkerNames())

	jobs := s.Jobs()
	fmt.Fprintf(w, "\nScheduled Jobs (%d):\n", len(jobs))
	for _, job := range jobs {
		state := "ENABLED"
		if !job.Enabled {
			state = "DISABLED"
		}
		fmt.Fprintf(w, "  %-8s %s\n", state, job.Tag)
		fmt.Fprintf(w, "           Schedule: %s (%s)\n", job.Schedule, schedule.HumanReadable(job.Schedule))
		fmt.Fprintf(w, "           Command:  %s\n", job.Command)
	}

	stats := s.GetSystemStats()
	fmt.Fprintln(w, "\nSystem Statistics:")
	fmt.Fprintf(w, "  Running Workers:    %d\n", stats.Process.RunningWorkers)
	fmt.Fprintf(w, "  Enabled Cron Jobs:  %d\n", stats.Cron.EnabledJobs)
	fmt.Fprintf(w, "  Total CPU Usage:    %.1f%%\n", stats.Process.TotalCPUPercent)
	fmt.Fprintf(w, "  Total Memory Usage: %.1f MB\n", stats.Process.TotalMemoryMB)
}
