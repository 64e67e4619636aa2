package launcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/workerctl/workerctl/internal/config"
	"github.com/workerctl/workerctl/internal/logger"
	"github.com/workerctl/workerctl/internal/pidfile"
)

// PlanEntry is one worker in a launch plan: a runnable command plus its
// fully merged environment.
type PlanEntry struct {
	Name    string            `json:"name"`
	Command []string          `json:"command"`
	Env     map[string]string `json:"env,omitempty"`
}

// Plan is the declarative payload consumed by the fixed aggregator
// (the run-plan command). The scheduler installs one crontab entry pointing
// at a plan file instead of generating launcher source at runtime.
type Plan struct {
	GeneratedAt time.Time   `json:"generated_at"`
	AppDir      string      `json:"app_dir"`
	LogDir      string      `json:"log_dir"`
	Workers     []PlanEntry `json:"workers"`
}

// PlanFileName is the plan location relative to the app directory.
const PlanFileName = "launch_plan.json"

// BuildPlan assembles a plan covering every enabled worker, in config order.
func BuildPlan(cfg *config.Config) Plan {
	p := Plan{
		GeneratedAt: time.Now(),
		AppDir:      cfg.Scheduler.AppDir,
		LogDir:      cfg.Scheduler.LogDir,
	}
	for _, w := range cfg.EnabledWorkers() {
		p.Workers = append(p.Workers, PlanEntry{
			Name:    w.Name,
			Command: []string{cfg.Scheduler.InterpreterPath, cfg.ScriptPath(w)},
			Env:     cfg.MergeEnv(w),
		})
	}
	return p
}

// Save writes the plan as indented JSON.
func (p Plan) Save(path string) error {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o600)
}

// LoadPlan reads a plan file.
func LoadPlan(path string) (Plan, error) {
	var p Plan
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("invalid launch plan %s: %w", path, err)
	}
	return p, nil
}

// RunPlan launches every plan entry sequentially with delay between
// launches, appending timestamped progress lines to the shared aggregator
// log. It returns per-worker results; the run is best-effort across entries.
func RunPlan(p Plan, delay time.Duration) map[string]bool {
	_ = os.MkdirAll(p.LogDir, 0o750)
	agg := newAggregatorLog(p.LogDir)
	defer agg.Close()

	pids := pidfile.New(p.LogDir)
	l := New(pids, logger.Config{Dir: p.LogDir})

	agg.Printf("aggregator", "starting launch of %d workers", len(p.Workers))
	results := make(map[string]bool, len(p.Workers))
	for i, entry := range p.Workers {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		w := config.Worker{Name: entry.Name, Enabled: true}
		pid, err := launchEntry(l, p, entry, w)
		if err != nil {
			agg.Printf(entry.Name, "launch failed: %v", err)
			results[entry.Name] = false
			continue
		}
		agg.Printf(entry.Name, "launched with pid %d", pid)
		results[entry.Name] = true
	}

	ok := 0
	for _, success := range results {
		if success {
			ok++
		}
	}
	agg.Printf("aggregator", "launch completed: %d succeeded, %d failed", ok, len(results)-ok)
	return results
}

func launchEntry(l *Launcher, p Plan, entry PlanEntry, w config.Worker) (int, error) {
	if len(entry.Command) < 2 {
		return 0, fmt.Errorf("plan entry %s has no runnable command", entry.Name)
	}
	interpreter := entry.Command[0]
	script := entry.Command[1]
	// Launch resolves the script under AppDir; plan commands carry absolute
	// paths, so feed the relative remainder when possible.
	rel, err := filepath.Rel(p.AppDir, script)
	if err != nil {
		rel = script
	}
	w.Script = rel
	return l.Launch(w, interpreter, p.AppDir, entry.Env)
}
