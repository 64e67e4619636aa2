package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	gops "github.com/shirou/gopsutil/v4/process"
)

// Manager persists worker process ids as {dir}/{name}.pid files. PID files
// are the sole durable link between controller invocations and already
// running workers; unparsable content is always treated as absent.
type Manager struct {
	dir string
}

func New(dir string) *Manager {
	_ = os.MkdirAll(dir, 0o750)
	return &Manager{dir: dir}
}

// Path returns the PID file path for a worker.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, fmt.Sprintf("%s.pid", name))
}

// Save writes the pid as plain decimal text.
func (m *Manager) Save(name string, pid int) error {
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(m.Path(name), []byte(strconv.Itoa(pid)), 0o600)
}

// Load reads the recorded pid. A missing file or any content that does not
// parse as a positive integer reports absent, never an error.
func (m *Manager) Load(name string) (int, bool) {
	b, err := os.ReadFile(m.Path(name))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Remove deletes the PID file. Removing an absent file succeeds.
func (m *Manager) Remove(name string) error {
	err := os.Remove(m.Path(name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// CleanupStale scans all PID files and removes exactly those whose recorded
// pid no longer corresponds to a live process. It returns the worker names
// whose files were removed.
func (m *Manager) CleanupStale() []string {
	matches, err := filepath.Glob(filepath.Join(m.dir, "*.pid"))
	if err != nil {
		return nil
	}
	var cleaned []string
	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), ".pid")
		pid, ok := m.Load(name)
		if !ok {
			continue
		}
		if !Alive(pid) {
			_ = m.Remove(name)
			cleaned = append(cleaned, name)
		}
	}
	sort.Strings(cleaned)
	return cleaned
}

// Alive reports whether a process with the given pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gops.PidExists(int32(pid))
	return err == nil && ok
}
