package orchestrator

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/workerctl/workerctl/internal/config"
	"github.com/workerctl/workerctl/internal/launcher"
)

// fakeCronSystem stands in for the real crontab so tests never edit it.
type fakeCronSystem struct {
	content string
	writes  int
}

func (f *fakeCronSystem) Read() (string, error) { return f.content, nil }

func (f *fakeCronSystem) Write(content string) error {
	f.content = content
	f.writes++
	return nil
}

func testSystem(t *testing.T, workers ...config.Worker) (*System, *fakeCronSystem) {
	t.Helper()
	appDir := t.TempDir()
	for _, w := range workers {
		script := filepath.Join(appDir, w.Script)
		if err := os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755); err != nil {
			t.Fatalf("write script: %v", err)
		}
	}
	cfg := &config.Config{
		Scheduler: config.Scheduler{
			AppDir:          appDir,
			InterpreterPath: "/bin/sh",
			LogDir:          filepath.Join(appDir, "logs"),
			TagPrefix:       "Svc",
			DefaultSchedule: "0 6 * * *",
		},
		Workers:   workers,
		GlobalEnv: map[string]string{"APP_ENV": "test"},
	}
	cronSys := &fakeCronSystem{}
	s, err := New(cfg, cronSys)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, cronSys
}

func worker(name string, enabled bool) config.Worker {
	return config.Worker{Name: name, Script: name + ".sh", Enabled: enabled}
}

func TestSetupSchedulerIndividualJobs(t *testing.T) {
	s, cronSys := testSystem(t,
		worker("w1", true),
		worker("w2", true),
		worker("w3", false),
	)

	if err := s.SetupScheduler("0 7 * * *", false); err != nil {
		t.Fatalf("SetupScheduler: %v", err)
	}
	if cronSys.writes != 1 {
		t.Fatalf("writes = %d, want 1", cronSys.writes)
	}

	jobs := s.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2 (disabled worker gets no entry)", len(jobs))
	}
	tags := map[string]bool{}
	for _, job := range jobs {
		tags[job.Tag] = true
		if job.Schedule != "0 7 * * *" {
			t.Fatalf("job %s schedule = %q", job.Tag, job.Schedule)
		}
		if !job.Enabled || !job.Valid {
			t.Fatalf("job %s = %+v", job.Tag, job)
		}
		if !strings.HasPrefix(job.Command, "/bin/sh ") {
			t.Fatalf("job %s command = %q", job.Tag, job.Command)
		}
		if job.Env["APP_ENV"] != "test" {
			t.Fatalf("job %s env = %v", job.Tag, job.Env)
		}
	}
	if !tags["Svc_w1"] || !tags["Svc_w2"] {
		t.Fatalf("tags = %v", tags)
	}
}

func TestSetupSchedulerDefaultSchedule(t *testing.T) {
	s, _ := testSystem(t, worker("w1", true))
	if err := s.SetupScheduler("", false); err != nil {
		t.Fatalf("SetupScheduler: %v", err)
	}
	jobs := s.Jobs()
	if len(jobs) != 1 || jobs[0].Schedule != "0 6 * * *" {
		t.Fatalf("jobs = %+v, want the configured default schedule", jobs)
	}
}

func TestSetupSchedulerIsIdempotent(t *testing.T) {
	s, cronSys := testSystem(t, worker("w1", true), worker("w2", true))

	if err := s.SetupScheduler("0 7 * * *", false); err != nil {
		t.Fatalf("first SetupScheduler: %v", err)
	}
	if err := s.SetupScheduler("0 8 * * *", false); err != nil {
		t.Fatalf("second SetupScheduler: %v", err)
	}

	jobs := s.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2 after repeated setup", len(jobs))
	}
	for _, job := range jobs {
		if job.Schedule != "0 8 * * *" {
			t.Fatalf("job %s kept the old schedule %q", job.Tag, job.Schedule)
		}
	}
	if strings.Count(cronSys.content, "tag=Svc_w1") != 1 {
		t.Fatalf("duplicate entries:\n%s", cronSys.content)
	}
}

func TestSetupSchedulerAggregate(t *testing.T) {
	s, cronSys := testSystem(t, worker("w1", true), worker("w2", true), worker("w3", false))

	if err := s.SetupScheduler("0 6 * * *", true); err != nil {
		t.Fatalf("SetupScheduler: %v", err)
	}

	jobs := s.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want a single master entry", len(jobs))
	}
	master := jobs[0]
	if master.Tag != "Svc_Master" {
		t.Fatalf("tag = %q, want Svc_Master", master.Tag)
	}
	if !strings.Contains(master.Command, "run-plan --plan ") {
		t.Fatalf("command = %q", master.Command)
	}
	if master.Env["APP_ENV"] != "test" {
		t.Fatalf("env = %v", master.Env)
	}
	if strings.Contains(cronSys.content, "tag=Svc_w1") {
		t.Fatalf("per-worker entry alongside the master:\n%s", cronSys.content)
	}

	planPath := filepath.Join(s.Config().Scheduler.AppDir, launcher.PlanFileName)
	plan, err := launcher.LoadPlan(planPath)
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}
	if len(plan.Workers) != 2 {
		t.Fatalf("plan workers = %d, want only the enabled ones", len(plan.Workers))
	}
}

func TestSetupSchedulerPreservesForeignEntries(t *testing.T) {
	s, cronSys := testSystem(t, worker("w1", true))
	cronSys.content = "0 3 * * * /usr/local/bin/backup.sh\n@daily /bin/other # tag=Other_job\n"
	if err := s.cron.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if err := s.SetupScheduler("0 7 * * *", false); err != nil {
		t.Fatalf("SetupScheduler: %v", err)
	}
	if !strings.Contains(cronSys.content, "backup.sh") {
		t.Fatal("foreign line lost")
	}
	if !strings.Contains(cronSys.content, "tag=Other_job") {
		t.Fatal("entry outside the tag prefix lost")
	}
	if !strings.Contains(cronSys.content, "tag=Svc_w1") {
		t.Fatal("own entry missing")
	}
}

func TestEnableDisableRemoveAllJobs(t *testing.T) {
	s, cronSys := testSystem(t, worker("w1", true), worker("w2", true))
	if err := s.SetupScheduler("0 7 * * *", false); err != nil {
		t.Fatalf("SetupScheduler: %v", err)
	}

	n, err := s.DisableAllJobs()
	if err != nil || n != 2 {
		t.Fatalf("DisableAllJobs = %d, %v", n, err)
	}
	for _, job := range s.Jobs() {
		if job.Enabled {
			t.Fatalf("job %s still enabled", job.Tag)
		}
	}
	if !strings.Contains(cronSys.content, "# 0 7 * * *") {
		t.Fatalf("disabled entries not committed:\n%s", cronSys.content)
	}

	n, err = s.EnableAllJobs()
	if err != nil || n != 2 {
		t.Fatalf("EnableAllJobs = %d, %v", n, err)
	}

	n, err = s.RemoveAllJobs()
	if err != nil || n != 2 {
		t.Fatalf("RemoveAllJobs = %d, %v", n, err)
	}
	if len(s.Jobs()) != 0 {
		t.Fatal("jobs remain after removal")
	}
	if strings.Contains(cronSys.content, "tag=Svc_") {
		t.Fatalf("entries still committed:\n%s", cronSys.content)
	}
}

func TestBackupRestoreCrontab(t *testing.T) {
	s, cronSys := testSystem(t, worker("w1", true))
	if err := s.SetupScheduler("0 7 * * *", false); err != nil {
		t.Fatalf("SetupScheduler: %v", err)
	}

	path := filepath.Join(t.TempDir(), "crontab.bak")
	if err := s.BackupCrontab(path); err != nil {
		t.Fatalf("BackupCrontab: %v", err)
	}

	if _, err := s.RemoveAllJobs(); err != nil {
		t.Fatalf("RemoveAllJobs: %v", err)
	}
	if err := s.RestoreCrontab(path); err != nil {
		t.Fatalf("RestoreCrontab: %v", err)
	}
	if len(s.Jobs()) != 1 {
		t.Fatal("restore did not bring the entry back")
	}
	if !strings.Contains(cronSys.content, "tag=Svc_w1") {
		t.Fatal("restore did not commit")
	}
}

func TestLaunchWorkersNow(t *testing.T) {
	s, _ := testSystem(t, worker("w1", true), worker("w2", true), worker("w3", false))
	results := s.LaunchWorkersNow()
	t.Cleanup(func() { s.StopAllWorkers(true) })

	if !results["w1"] || !results["w2"] {
		t.Fatalf("enabled workers failed: %v", results)
	}
	if on, present := results["w3"]; !present || on {
		t.Fatalf("disabled worker should be reported false: %v", results)
	}
	statuses := s.WorkerStatuses()
	if statuses["w3"].State != "NOT_STARTED" {
		t.Fatalf("w3 state = %s, want NOT_STARTED", statuses["w3"].State)
	}
}

func TestWorkerNotFound(t *testing.T) {
	s, _ := testSystem(t, worker("w1", true))
	if err := s.LaunchWorker("missing"); !errors.Is(err, config.ErrWorkerNotFound) {
		t.Fatalf("LaunchWorker err = %v", err)
	}
	if err := s.RestartWorker("missing"); !errors.Is(err, config.ErrWorkerNotFound) {
		t.Fatalf("RestartWorker err = %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := &config.Config{
		Scheduler: config.Scheduler{
			AppDir:          "/does/not/exist",
			InterpreterPath: "/bin/sh",
			LogDir:          t.TempDir(),
		},
	}
	if _, err := New(cfg, &fakeCronSystem{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSaveConfigNoPath(t *testing.T) {
	s, _ := testSystem(t, worker("w1", true))
	if err := s.SaveConfig(""); err == nil {
		t.Fatal("expected error when no path is known")
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := s.SaveConfig(path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
}
