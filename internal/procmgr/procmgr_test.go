package procmgr

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/workerctl/workerctl/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	appDir := t.TempDir()
	return &config.Config{
		Scheduler: config.Scheduler{
			AppDir:          appDir,
			InterpreterPath: "/bin/sh",
			LogDir:          filepath.Join(appDir, "logs"),
		},
		GlobalEnv: map[string]string{},
	}
}

func addSleeper(t *testing.T, cfg *config.Config, name string) config.Worker {
	t.Helper()
	script := filepath.Join(cfg.Scheduler.AppDir, name+".sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return config.Worker{Name: name, Script: name + ".sh", Enabled: true}
}

func killLeftover(t *testing.T, m *Manager, names ...string) {
	t.Helper()
	t.Cleanup(func() {
		for _, name := range names {
			if pid, ok := m.pids.Load(name); ok {
				_ = syscall.Kill(pid, syscall.SIGKILL)
			}
		}
	})
}

func waitStopped(t *testing.T, m *Manager, name string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !m.GetStatus(name).Running() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("worker %s still running", name)
}

func TestLaunchWorkersAndStatus(t *testing.T) {
	cfg := testConfig(t)
	stay := addSleeper(t, cfg, "stay")
	off := addSleeper(t, cfg, "off")
	off.Enabled = false
	broken := config.Worker{Name: "broken", Script: "missing.sh", Enabled: true}

	m := New(cfg.Scheduler.LogDir)
	killLeftover(t, m, "stay")

	results := m.LaunchWorkers(cfg, []config.Worker{stay, off, broken})
	if !results["stay"] || results["off"] || results["broken"] {
		t.Fatalf("results = %v", results)
	}

	if info := m.GetStatus("stay"); !info.Running() {
		t.Fatalf("stay state = %s, want RUNNING", info.State)
	}
	all := m.GetAllStatuses([]string{"stay", "off", "broken"})
	if len(all) != 3 {
		t.Fatalf("statuses = %d entries, want 3", len(all))
	}
	if all["off"].Running() {
		t.Fatal("disabled worker reported running")
	}
}

func TestStopAndStopAll(t *testing.T) {
	cfg := testConfig(t)
	a := addSleeper(t, cfg, "a")
	b := addSleeper(t, cfg, "b")

	m := New(cfg.Scheduler.LogDir)
	killLeftover(t, m, "a", "b")
	m.LaunchWorkers(cfg, []config.Worker{a, b})

	if err := m.Stop("a", false); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitStopped(t, m, "a")
	if _, ok := m.pids.Load("a"); ok {
		t.Fatal("pid file for a should be gone")
	}

	results := m.StopAll([]string{"a", "b"}, false)
	if !results["a"] || !results["b"] {
		t.Fatalf("StopAll = %v", results)
	}
	waitStopped(t, m, "b")
}

func TestStopNeverStarted(t *testing.T) {
	m := New(t.TempDir())
	if err := m.Stop("ghost", false); err != nil {
		t.Fatalf("Stop on never-started worker: %v", err)
	}
}

func TestRestart(t *testing.T) {
	cfg := testConfig(t)
	w := addSleeper(t, cfg, "cycle")

	m := New(cfg.Scheduler.LogDir)
	killLeftover(t, m, "cycle")
	m.LaunchWorkers(cfg, []config.Worker{w})
	firstPID, ok := m.pids.Load("cycle")
	if !ok {
		t.Fatal("no pid after launch")
	}

	if err := m.Restart(cfg, w); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	secondPID, ok := m.pids.Load("cycle")
	if !ok {
		t.Fatal("no pid after restart")
	}
	if secondPID == firstPID {
		t.Fatalf("restart kept pid %d", firstPID)
	}
	if !m.GetStatus("cycle").Running() {
		t.Fatal("worker not running after restart")
	}
}

func TestGetSystemStats(t *testing.T) {
	cfg := testConfig(t)
	w := addSleeper(t, cfg, "stay")

	m := New(cfg.Scheduler.LogDir)
	killLeftover(t, m, "stay")
	m.LaunchWorkers(cfg, []config.Worker{w})

	stats := m.GetSystemStats([]string{"stay", "never"})
	if stats.TotalWorkers != 2 {
		t.Fatalf("total = %d, want 2", stats.TotalWorkers)
	}
	if stats.RunningWorkers != 1 || stats.StoppedWorkers != 1 {
		t.Fatalf("running/stopped = %d/%d, want 1/1", stats.RunningWorkers, stats.StoppedWorkers)
	}
	if stats.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
}

func TestExportStatusReport(t *testing.T) {
	cfg := testConfig(t)
	w := addSleeper(t, cfg, "stay")

	m := New(cfg.Scheduler.LogDir)
	killLeftover(t, m, "stay")
	m.LaunchWorkers(cfg, []config.Worker{w})

	path := filepath.Join(t.TempDir(), "report.json")
	report, err := m.ExportStatusReport([]string{"stay"}, path)
	if err != nil {
		t.Fatalf("ExportStatusReport: %v", err)
	}
	if report.Stats.RunningWorkers != 1 {
		t.Fatalf("running = %d, want 1", report.Stats.RunningWorkers)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded StatusReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if _, ok := decoded.Workers["stay"]; !ok {
		t.Fatalf("worker missing from report: %v", decoded.Workers)
	}
}

func TestPrintStatusSummary(t *testing.T) {
	cfg := testConfig(t)
	w := addSleeper(t, cfg, "stay")

	m := New(cfg.Scheduler.LogDir)
	killLeftover(t, m, "stay")
	m.LaunchWorkers(cfg, []config.Worker{w})

	var buf bytes.Buffer
	m.PrintStatusSummary(&buf, []string{"stay", "never"})
	out := buf.String()
	for _, want := range []string{"WORKER", "STATE", "stay", "never", "1 running, 1 stopped of 2 workers"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestCleanupStale(t *testing.T) {
	logDir := t.TempDir()
	m := New(logDir)
	if err := m.pids.Save("dead", 1<<30); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.pids.Save("self", os.Getpid()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cleaned := m.CleanupStale()
	if len(cleaned) != 1 || cleaned[0] != "dead" {
		t.Fatalf("cleaned = %v, want [dead]", cleaned)
	}
	if _, ok := m.pids.Load("self"); !ok {
		t.Fatal("live pid file removed")
	}
	_ = m.pids.Remove("self")
}
