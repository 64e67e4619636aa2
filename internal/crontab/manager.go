package crontab

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/workerctl/workerctl/internal/schedule"
)

var (
	ErrDuplicateTag    = errors.New("crontab: job with tag already exists")
	ErrJobNotFound     = errors.New("crontab: job not found")
	ErrInvalidSchedule = errors.New("crontab: invalid schedule expression")
)

// Info is the read-only projection of one managed entry.
type Info struct {
	Tag      string            `json:"tag"`
	Schedule string            `json:"schedule"`
	Command  string            `json:"command"`
	Enabled  bool              `json:"enabled"`
	Valid    bool              `json:"valid"`
	Env      map[string]string `json:"env,omitempty"`
}

// JobUpdate carries the fields of an update; nil means leave unchanged.
type JobUpdate struct {
	Command  *string
	Schedule *string
	Enabled  *bool
	Env      map[string]string
}

// Manager edits a staged copy of the host job table. Nothing is visible
// externally until WriteChanges commits the copy; concurrent external
// edits between load and commit are lost (last writer wins).
type Manager struct {
	sys System
	tab *tab
}

// New loads the current table into the staging copy.
func New(sys System) (*Manager, error) {
	m := &Manager{sys: sys}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload discards staged edits and re-reads the table.
func (m *Manager) Reload() error {
	content, err := m.sys.Read()
	if err != nil {
		return fmt.Errorf("load crontab: %w", err)
	}
	m.tab = parseTab(content)
	return nil
}

// CreateJob stages a new entry. The tag is this domain's primary key, so
// an entry with the same tag already present fails.
func (m *Manager) CreateJob(command, sched, tag string, env map[string]string, enabled bool) error {
	if !schedule.IsValid(sched) {
		return fmt.Errorf("%w: %q", ErrInvalidSchedule, sched)
	}
	if m.tab.findJob(tag) != nil {
		return fmt.Errorf("%w: %q", ErrDuplicateTag, tag)
	}
	m.tab.appendJob(&Entry{
		Tag:      tag,
		Schedule: sched,
		Command:  command,
		Enabled:  enabled,
		Env:      sortedEnv(env),
	})
	slog.Debug("staged cron job", "tag", tag, "schedule", sched)
	return nil
}

// UpdateJob stages changes to an existing entry.
func (m *Manager) UpdateJob(tag string, upd JobUpdate) error {
	job := m.tab.findJob(tag)
	if job == nil {
		return fmt.Errorf("%w: %q", ErrJobNotFound, tag)
	}
	if upd.Schedule != nil {
		if !schedule.IsValid(*upd.Schedule) {
			return fmt.Errorf("%w: %q", ErrInvalidSchedule, *upd.Schedule)
		}
		job.Schedule = *upd.Schedule
	}
	if upd.Command != nil {
		job.Command = *upd.Command
	}
	if upd.Env != nil {
		job.Env = sortedEnv(upd.Env)
	}
	if upd.Enabled != nil {
		job.Enabled = *upd.Enabled
	}
	return nil
}

// RemoveJob stages removal of the entry with exactly this tag.
func (m *Manager) RemoveJob(tag string) error {
	if m.tab.removeJobs(func(e *Entry) bool { return e.Tag == tag }) == 0 {
		return fmt.Errorf("%w: %q", ErrJobNotFound, tag)
	}
	return nil
}

// RemoveJobsByPrefix stages removal of every entry whose tag starts with
// prefix and reports how many. Entries outside the prefix are untouched.
func (m *Manager) RemoveJobsByPrefix(prefix string) int {
	return m.tab.removeJobs(func(e *Entry) bool { return strings.HasPrefix(e.Tag, prefix) })
}

// FindJob returns the entry with exactly this tag.
func (m *Manager) FindJob(tag string) (Info, bool) {
	job := m.tab.findJob(tag)
	if job == nil {
		return Info{}, false
	}
	return toInfo(job), true
}

// ListJobs returns managed entries whose tag starts with prefix, in table
// order. An empty prefix lists everything managed.
func (m *Manager) ListJobs(prefix string) []Info {
	var out []Info
	for _, job := range m.tab.jobs() {
		if strings.HasPrefix(job.Tag, prefix) {
			out = append(out, toInfo(job))
		}
	}
	return out
}

// EnableJobs enables every entry under prefix and reports how many matched.
func (m *Manager) EnableJobs(prefix string) int { return m.setEnabled(prefix, true) }

// DisableJobs disables every entry under prefix and reports how many matched.
func (m *Manager) DisableJobs(prefix string) int { return m.setEnabled(prefix, false) }

func (m *Manager) setEnabled(prefix string, enabled bool) int {
	count := 0
	for _, job := range m.tab.jobs() {
		if strings.HasPrefix(job.Tag, prefix) {
			job.Enabled = enabled
			count++
		}
	}
	return count
}

// ToggleJob flips the enabled flag of one entry; nothing else changes.
func (m *Manager) ToggleJob(tag string) error {
	job := m.tab.findJob(tag)
	if job == nil {
		return fmt.Errorf("%w: %q", ErrJobNotFound, tag)
	}
	job.Enabled = !job.Enabled
	return nil
}

// SetGlobalEnv upserts top-level env assignments seen by every entry.
func (m *Manager) SetGlobalEnv(env map[string]string) {
	for _, key := range sortedKeys(env) {
		m.tab.setGlobalEnv(key, env[key])
	}
}

// GlobalEnv returns the staged top-level env assignments.
func (m *Manager) GlobalEnv() map[string]string { return m.tab.globalEnv() }

// WriteChanges commits the staged table to the host. On failure the staged
// edits remain pending for a retry.
func (m *Manager) WriteChanges() error {
	if err := m.sys.Write(m.tab.render()); err != nil {
		return fmt.Errorf("commit crontab: %w", err)
	}
	slog.Info("crontab committed", "jobs", len(m.tab.jobs()))
	return nil
}

// Render returns the staged table as crontab text.
func (m *Manager) Render() string { return m.tab.render() }

// Backup writes the staged table to a file.
func (m *Manager) Backup(path string) error {
	if err := os.WriteFile(path, []byte(m.tab.render()), 0o600); err != nil {
		return fmt.Errorf("backup crontab: %w", err)
	}
	return nil
}

// Restore replaces the staged table with a backup file's contents. The
// host table changes only on the next WriteChanges.
func (m *Manager) Restore(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("restore crontab: %w", err)
	}
	m.tab = parseTab(string(data))
	return nil
}

// ValidateAll checks every managed entry's schedule.
func (m *Manager) ValidateAll() map[string]bool {
	out := make(map[string]bool)
	for _, job := range m.tab.jobs() {
		out[job.Tag] = schedule.IsValid(job.Schedule)
	}
	return out
}

func toInfo(e *Entry) Info {
	info := Info{
		Tag:      e.Tag,
		Schedule: e.Schedule,
		Command:  e.Command,
		Enabled:  e.Enabled,
		Valid:    schedule.IsValid(e.Schedule),
	}
	if len(e.Env) > 0 {
		info.Env = make(map[string]string, len(e.Env))
		for _, ev := range e.Env {
			info.Env[ev.Key] = ev.Value
		}
	}
	return info
}

func sortedEnv(env map[string]string) []EnvVar {
	if len(env) == 0 {
		return nil
	}
	out := make([]EnvVar, 0, len(env))
	for _, key := range sortedKeys(env) {
		out = append(out, EnvVar{Key: key, Value: env[key]})
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
