package terminator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"

	"github.com/workerctl/workerctl/internal/pidfile"
)

// DefaultTimeout is the grace period given to a worker before a graceful
// stop escalates to a forced kill.
const DefaultTimeout = 10 * time.Second

// killGrace bounds the wait for the process to disappear after SIGKILL.
const killGrace = 5 * time.Second

// ErrStillRunning means even the forced kill did not take; this is the only
// terminal termination failure.
var ErrStillRunning = errors.New("process still running after forced kill")

// Terminator stops workers, escalating from a cooperative stop request to an
// unconditional kill when the grace period runs out.
type Terminator struct {
	pids *pidfile.Manager
}

func New(pids *pidfile.Manager) *Terminator {
	return &Terminator{pids: pids}
}

// Terminate stops a worker. A worker with no PID file, or whose recorded
// process is already gone, succeeds immediately ("already stopped"). The PID
// file is removed only after the process is confirmed gone.
func (t *Terminator) Terminate(name string, force bool, timeout time.Duration) error {
	pid, ok := t.pids.Load(name)
	if !ok {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	proc, err := gops.NewProcess(int32(pid))
	if err != nil || gone(proc) {
		_ = t.pids.Remove(name)
		return nil
	}

	if force {
		_ = proc.Kill()
	} else {
		if err := proc.Terminate(); err != nil {
			// terminate request refused; fall through to the forced path
			slog.Warn("graceful stop failed", "worker", name, "pid", pid, "error", err)
		}
		if !waitGone(proc, timeout) {
			slog.Warn("graceful stop timed out, killing", "worker", name, "pid", pid)
			_ = proc.Kill()
		}
	}

	if !waitGone(proc, killGrace) {
		return fmt.Errorf("%w: %s (pid %d)", ErrStillRunning, name, pid)
	}
	_ = t.pids.Remove(name)
	slog.Info("stopped worker", "worker", name, "pid", pid)
	return nil
}

// TerminateMany stops workers one at a time, best-effort; the result maps
// worker name to success.
func (t *Terminator) TerminateMany(names []string, force bool, timeout time.Duration) map[string]bool {
	results := make(map[string]bool, len(names))
	for _, name := range names {
		err := t.Terminate(name, force, timeout)
		if err != nil {
			slog.Error("terminate failed", "worker", name, "error", err)
		}
		results[name] = err == nil
	}
	return results
}

// TerminateAll stops every named worker and reports whether all succeeded.
func (t *Terminator) TerminateAll(names []string, force bool) bool {
	results := t.TerminateMany(names, force, DefaultTimeout)
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

// gone reports whether the process has exited. A defunct-but-unreaped child
// still occupies the process table, so zombie state counts as gone.
func gone(proc *gops.Process) bool {
	running, err := proc.IsRunning()
	if err != nil || !running {
		return true
	}
	statuses, err := proc.Status()
	if err == nil && len(statuses) > 0 && statuses[0] == gops.Zombie {
		return true
	}
	return false
}

func waitGone(proc *gops.Process, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if gone(proc) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return gone(proc)
}
