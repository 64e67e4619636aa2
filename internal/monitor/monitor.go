package monitor

import (
	"time"

	gops "github.com/shirou/gopsutil/v4/process"

	"github.com/workerctl/workerctl/internal/pidfile"
)

// State is the observed lifecycle state of a worker.
type State string

const (
	StateRunning    State = "RUNNING"
	StateStopped    State = "STOPPED"
	StateNotStarted State = "NOT_STARTED"
	StateError      State = "ERROR"
	StateZombie     State = "ZOMBIE"
	StateUnknown    State = "UNKNOWN"
)

// Info is a point-in-time snapshot of a worker process. It is reconstructed
// from the OS on every query and never persisted; it may be stale the instant
// after it is read.
type Info struct {
	WorkerName string    `json:"worker_name"`
	PID        int       `json:"pid,omitempty"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	CheckedAt  time.Time `json:"checked_at"`
}

func (i Info) Running() bool { return i.State == StateRunning }

// Monitor queries OS state for tracked workers. It keeps one process handle
// per pid to avoid repeated syscalls; an entry is invalidated the first time
// its process is observed gone.
type Monitor struct {
	pids  *pidfile.Manager
	cache map[int32]*gops.Process
}

func New(pids *pidfile.Manager) *Monitor {
	return &Monitor{pids: pids, cache: make(map[int32]*gops.Process)}
}

// Status returns the current snapshot for a worker. A stale PID file (the
// recorded process no longer exists) is removed here, self-healing the
// persisted state, and the worker reports Stopped. A worker with no PID file
// reports NotStarted.
func (m *Monitor) Status(name string) Info {
	now := time.Now()
	pid, ok := m.pids.Load(name)
	if !ok {
		return Info{WorkerName: name, State: StateNotStarted, CheckedAt: now}
	}

	proc, err := m.handle(int32(pid))
	if err != nil {
		// process table has no such pid: drop the stale record
		m.forget(int32(pid))
		_ = m.pids.Remove(name)
		return Info{WorkerName: name, State: StateStopped, CheckedAt: now}
	}

	running, err := proc.IsRunning()
	if err != nil {
		return Info{WorkerName: name, PID: pid, State: StateError, CheckedAt: now}
	}
	if !running {
		m.forget(int32(pid))
		_ = m.pids.Remove(name)
		return Info{WorkerName: name, State: StateStopped, CheckedAt: now}
	}

	info := Info{WorkerName: name, PID: pid, State: m.mapStatus(proc), CheckedAt: now}
	// metrics are best-effort; failures degrade to zero values
	if ct, err := proc.CreateTime(); err == nil && ct > 0 {
		info.StartedAt = time.UnixMilli(ct)
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		info.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		info.MemoryMB = float64(mem.RSS) / 1024 / 1024
	}
	return info
}

// StatusAll snapshots every named worker.
func (m *Monitor) StatusAll(names []string) map[string]Info {
	out := make(map[string]Info, len(names))
	for _, name := range names {
		out[name] = m.Status(name)
	}
	return out
}

// InvalidateGone drops cached handles whose processes have exited.
func (m *Monitor) InvalidateGone() {
	for pid, proc := range m.cache {
		running, err := proc.IsRunning()
		if err != nil || !running {
			delete(m.cache, pid)
		}
	}
}

func (m *Monitor) handle(pid int32) (*gops.Process, error) {
	if p, ok := m.cache[pid]; ok {
		return p, nil
	}
	p, err := gops.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	m.cache[pid] = p
	return p, nil
}

func (m *Monitor) forget(pid int32) { delete(m.cache, pid) }

func (m *Monitor) mapStatus(proc *gops.Process) State {
	statuses, err := proc.Status()
	if err != nil || len(statuses) == 0 {
		return StateUnknown
	}
	switch statuses[0] {
	case gops.Running, gops.Sleep, gops.Idle, gops.Wait:
		return StateRunning
	case gops.Stop:
		return StateStopped
	case gops.Zombie:
		return StateZombie
	default:
		return StateUnknown
	}
}
