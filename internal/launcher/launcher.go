package launcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/workerctl/workerctl/internal/config"
	"github.com/workerctl/workerctl/internal/logger"
	"github.com/workerctl/workerctl/internal/pidfile"
)

// DefaultLaunchDelay spaces out batch launches so workers do not spike the
// host at the same instant and their early log lines stay readable.
const DefaultLaunchDelay = 500 * time.Millisecond

var ErrScriptNotFound = errors.New("worker script not found")

// Launcher spawns detached worker processes with merged environment and log
// redirection. Once spawned, the controller holds no channel to a worker
// beyond its log file and PID file.
type Launcher struct {
	pids *pidfile.Manager
	logs logger.Config
}

func New(pids *pidfile.Manager, logs logger.Config) *Launcher {
	return &Launcher{pids: pids, logs: logs}
}

// Launch starts a single worker. It fails fast, spawning nothing, when the
// resolved script does not exist. On success the child's pid has been
// persisted and the child runs detached with stdout+stderr appended to the
// worker's log file.
func (l *Launcher) Launch(w config.Worker, interpreter, appDir string, env map[string]string) (int, error) {
	script := filepath.Join(appDir, w.Script)
	if _, err := os.Stat(script); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrScriptNotFound, script)
	}

	out, err := l.logs.Writer(w.Name)
	if err != nil {
		return 0, fmt.Errorf("open log for %s: %w", w.Name, err)
	}

	// ok: interpreter and script come from validated configuration
	// #nosec G204
	cmd := exec.Command(interpreter, script)
	cmd.Dir = appDir
	cmd.Env = mergeEnviron(os.Environ(), env)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("spawn %s: %w", w.Name, err)
	}
	pid := cmd.Process.Pid
	// Detach: the worker runs indefinitely and is never waited on here.
	_ = cmd.Process.Release()
	_ = out.Close()

	if err := l.pids.Save(w.Name, pid); err != nil {
		return 0, fmt.Errorf("write pid file for %s: %w", w.Name, err)
	}
	slog.Info("launched worker", "worker", w.Name, "pid", pid)
	return pid, nil
}

// LaunchMultiple launches workers in order with a fixed delay between each.
// Launching is best-effort across the set: one failure never aborts the
// remaining batch. Disabled workers report false. The result maps worker
// name to launch success.
func (l *Launcher) LaunchMultiple(cfg *config.Config, workers []config.Worker, delay time.Duration) map[string]bool {
	results := make(map[string]bool, len(workers))
	for i, w := range workers {
		if !w.Enabled {
			results[w.Name] = false
			continue
		}
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		_, err := l.Launch(w, cfg.Scheduler.InterpreterPath, cfg.Scheduler.AppDir, cfg.MergeEnv(w))
		if err != nil {
			slog.Error("launch failed", "worker", w.Name, "error", err)
		}
		results[w.Name] = err == nil
	}
	return results
}

// mergeEnviron applies overrides on top of the base "K=V" environment.
// Override keys win on conflict.
func mergeEnviron(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, shadowed := overrides[key]; !shadowed {
			out = append(out, kv)
		}
	}
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}
