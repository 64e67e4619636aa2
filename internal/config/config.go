package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration failures. Load failures are fatal to the
// caller before any process or schedule action proceeds.
var (
	ErrNotFound        = errors.New("config file not found")
	ErrMalformed       = errors.New("malformed config file")
	ErrDuplicateWorker = errors.New("worker already exists")
	ErrWorkerNotFound  = errors.New("worker not found")
)

// Worker describes one managed pipeline worker. Name is the identity key.
// RestartOnFailure and MaxRetries are advisory: crash recovery is delegated
// to the periodic re-trigger installed in the crontab.
type Worker struct {
	Name             string            `json:"name" mapstructure:"name"`
	Script           string            `json:"script" mapstructure:"script"` // resolved under AppDir
	Description      string            `json:"description,omitempty" mapstructure:"description"`
	Enabled          bool              `json:"enabled" mapstructure:"enabled"`
	Env              map[string]string `json:"env,omitempty" mapstructure:"env"`
	RestartOnFailure bool              `json:"restart_on_failure" mapstructure:"restart_on_failure"`
	MaxRetries       int               `json:"max_retries" mapstructure:"max_retries"`
	TimeoutSec       int               `json:"timeout,omitempty" mapstructure:"timeout"`
}

// Identity selects the crontab the scheduler writes to. The zero value means
// the current user; a non-empty Name targets that user's crontab (crontab -u).
type Identity struct {
	Name string
}

func (id Identity) IsCurrent() bool { return id.Name == "" }

func (id Identity) String() string {
	if id.IsCurrent() {
		return "current-user"
	}
	return id.Name
}

func (id Identity) MarshalJSON() ([]byte, error) { return json.Marshal(id.Name) }

func (id *Identity) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// legacy bool form: true means current user
		var v bool
		if err2 := json.Unmarshal(b, &v); err2 == nil {
			id.Name = ""
			return nil
		}
		return err
	}
	id.Name = s
	return nil
}

// Scheduler holds controller-wide settings.
type Scheduler struct {
	AppDir          string   `json:"app_dir"`
	InterpreterPath string   `json:"interpreter_path"`
	LogDir          string   `json:"log_dir"`
	Identity        Identity `json:"identity"`
	LogLevel        string   `json:"log_level"`
	TagPrefix       string   `json:"tag_prefix"`
	AggregateMode   bool     `json:"aggregate_mode"`
	DefaultSchedule string   `json:"default_schedule"`
}

// Config is the full persisted configuration document. Mutations happen only
// through explicit calls; nothing is auto-saved.
type Config struct {
	Scheduler Scheduler         `json:"scheduler"`
	Workers   []Worker          `json:"workers"`
	GlobalEnv map[string]string `json:"global_environment"`
}

// raw shapes for viper decoding; identity comes in as a plain string.
type fileScheduler struct {
	AppDir          string `mapstructure:"app_dir"`
	InterpreterPath string `mapstructure:"interpreter_path"`
	LogDir          string `mapstructure:"log_dir"`
	Identity        string `mapstructure:"identity"`
	LogLevel        string `mapstructure:"log_level"`
	TagPrefix       string `mapstructure:"tag_prefix"`
	AggregateMode   bool   `mapstructure:"aggregate_mode"`
	DefaultSchedule string `mapstructure:"default_schedule"`
}

type fileConfig struct {
	Scheduler fileScheduler     `mapstructure:"scheduler"`
	Workers   []Worker          `mapstructure:"workers"`
	GlobalEnv map[string]string `mapstructure:"global_environment"`
}

// Load reads the JSON configuration document at path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	c := &Config{
		Scheduler: Scheduler{
			AppDir:          fc.Scheduler.AppDir,
			InterpreterPath: fc.Scheduler.InterpreterPath,
			LogDir:          fc.Scheduler.LogDir,
			Identity:        Identity{Name: fc.Scheduler.Identity},
			LogLevel:        fc.Scheduler.LogLevel,
			TagPrefix:       fc.Scheduler.TagPrefix,
			AggregateMode:   fc.Scheduler.AggregateMode,
			DefaultSchedule: fc.Scheduler.DefaultSchedule,
		},
		Workers:   fc.Workers,
		GlobalEnv: fc.GlobalEnv,
	}
	c.applyDefaults()
	return c, nil
}

// Save persists the configuration as indented JSON. The parent directory is
// created when missing.
func (c *Config) Save(path string) error {
	if path == "" {
		return errors.New("no config file specified")
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o600)
}

// defaultWorkers is the fleet shipped by CreateDefault.
var defaultWorkers = []Worker{
	{Name: "realtime_detector", Script: "workers/realtime_detector", Description: "Real-time detection worker", Enabled: true},
	{Name: "ocr_processor", Script: "workers/ocr_processor", Description: "OCR processing worker", Enabled: true},
	{Name: "ocr_classification", Script: "workers/ocr_classification", Description: "OCR classification worker", Enabled: true},
	{Name: "ocr_downloader", Script: "workers/ocr_downloader", Description: "OCR download worker", Enabled: true},
	{Name: "ocr_text_processor", Script: "workers/ocr_text_processor", Description: "OCR text processing worker", Enabled: true},
	{Name: "delivery_scanner", Script: "workers/delivery_scanner", Description: "Delivery scanning worker", Enabled: true},
	{Name: "receipt_matcher", Script: "workers/receipt_matcher", Description: "Receipt matching worker", Enabled: true},
	{Name: "timezone_worker", Script: "workers/timezone_worker", Description: "Timezone processing worker", Enabled: true},
}

// CreateDefault builds a configuration with the standard worker fleet. An
// empty interpreter falls back to the stock python3 location.
func CreateDefault(appDir, interpreter string) *Config {
	if interpreter == "" {
		interpreter = "/usr/bin/python3"
	}
	c := &Config{
		Scheduler: Scheduler{
			AppDir:          appDir,
			InterpreterPath: interpreter,
		},
		GlobalEnv: map[string]string{
			"APP_ENV":   "development",
			"LOG_LEVEL": "INFO",
		},
	}
	c.Workers = make([]Worker, len(defaultWorkers))
	copy(c.Workers, defaultWorkers)
	for i := range c.Workers {
		if c.Workers[i].Env == nil {
			c.Workers[i].Env = map[string]string{}
		}
		c.Workers[i].RestartOnFailure = true
		c.Workers[i].MaxRetries = 3
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Scheduler.LogDir == "" && c.Scheduler.AppDir != "" {
		c.Scheduler.LogDir = filepath.Join(c.Scheduler.AppDir, "logs")
	}
	if c.Scheduler.LogLevel == "" {
		c.Scheduler.LogLevel = "INFO"
	}
	if c.Scheduler.TagPrefix == "" {
		c.Scheduler.TagPrefix = "WorkerService"
	}
	if c.Scheduler.DefaultSchedule == "" {
		c.Scheduler.DefaultSchedule = "0 6 * * *"
	}
	if c.GlobalEnv == nil {
		c.GlobalEnv = map[string]string{}
	}
}

// AddWorker appends a worker; a duplicate name fails and leaves prior state
// untouched.
func (c *Config) AddWorker(w Worker) error {
	for _, existing := range c.Workers {
		if existing.Name == w.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateWorker, w.Name)
		}
	}
	c.Workers = append(c.Workers, w)
	return nil
}

// RemoveWorker deletes a worker by name; false when absent.
func (c *Config) RemoveWorker(name string) bool {
	for i, w := range c.Workers {
		if w.Name == name {
			c.Workers = append(c.Workers[:i], c.Workers[i+1:]...)
			return true
		}
	}
	return false
}

// GetWorker returns the worker config for name.
func (c *Config) GetWorker(name string) (Worker, bool) {
	for _, w := range c.Workers {
		if w.Name == name {
			return w, true
		}
	}
	return Worker{}, false
}

// WorkerUpdate carries the mutable worker fields; nil fields are unchanged.
type WorkerUpdate struct {
	Script           *string
	Description      *string
	Enabled          *bool
	Env              map[string]string
	RestartOnFailure *bool
	MaxRetries       *int
	TimeoutSec       *int
}

// UpdateWorker applies upd to the named worker; false when absent.
func (c *Config) UpdateWorker(name string, upd WorkerUpdate) bool {
	for i := range c.Workers {
		if c.Workers[i].Name != name {
			continue
		}
		w := &c.Workers[i]
		if upd.Script != nil {
			w.Script = *upd.Script
		}
		if upd.Description != nil {
			w.Description = *upd.Description
		}
		if upd.Enabled != nil {
			w.Enabled = *upd.Enabled
		}
		if upd.Env != nil {
			w.Env = upd.Env
		}
		if upd.RestartOnFailure != nil {
			w.RestartOnFailure = *upd.RestartOnFailure
		}
		if upd.MaxRetries != nil {
			w.MaxRetries = *upd.MaxRetries
		}
		if upd.TimeoutSec != nil {
			w.TimeoutSec = *upd.TimeoutSec
		}
		return true
	}
	return false
}

// ScriptPath resolves a worker's script under the app directory.
func (c *Config) ScriptPath(w Worker) string {
	return filepath.Join(c.Scheduler.AppDir, w.Script)
}

// Validate checks the configuration. It returns no errors iff the app
// directory and interpreter exist, every enabled worker's resolved script
// exists, and at least one worker is configured.
func (c *Config) Validate() []error {
	var errs []error
	if _, err := os.Stat(c.Scheduler.AppDir); err != nil {
		errs = append(errs, fmt.Errorf("app directory does not exist: %s", c.Scheduler.AppDir))
	}
	if _, err := os.Stat(c.Scheduler.InterpreterPath); err != nil {
		errs = append(errs, fmt.Errorf("interpreter not found: %s", c.Scheduler.InterpreterPath))
	}
	if len(c.Workers) == 0 {
		errs = append(errs, errors.New("no workers configured"))
	}
	for _, w := range c.Workers {
		if !w.Enabled {
			continue
		}
		if _, err := os.Stat(c.ScriptPath(w)); err != nil {
			errs = append(errs, fmt.Errorf("worker script not found: %s", c.ScriptPath(w)))
		}
	}
	return errs
}

// MergeEnv merges global and worker env; worker-specific keys win.
func (c *Config) MergeEnv(w Worker) map[string]string {
	merged := make(map[string]string, len(c.GlobalEnv)+len(w.Env))
	for k, v := range c.GlobalEnv {
		merged[k] = v
	}
	for k, v := range w.Env {
		merged[k] = v
	}
	return merged
}

// EnabledWorkers returns only the enabled workers, in config order.
func (c *Config) EnabledWorkers() []Worker {
	out := make([]Worker, 0, len(c.Workers))
	for _, w := range c.Workers {
		if w.Enabled {
			out = append(out, w)
		}
	}
	return out
}

// WorkerNames returns the names of all configured workers, in config order.
func (c *Config) WorkerNames() []string {
	names := make([]string, 0, len(c.Workers))
	for _, w := range c.Workers {
		names = append(names, w.Name)
	}
	return names
}

// PrintSummary writes a human-readable configuration summary.
func (c *Config) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, "CONFIGURATION SUMMARY")
	fmt.Fprintf(w, "  App Directory:    %s\n", c.Scheduler.AppDir)
	fmt.Fprintf(w, "  Interpreter:      %s\n", c.Scheduler.InterpreterPath)
	fmt.Fprintf(w, "  Log Directory:    %s\n", c.Scheduler.LogDir)
	fmt.Fprintf(w, "  Identity:         %s\n", c.Scheduler.Identity)
	fmt.Fprintf(w, "  Log Level:        %s\n", c.Scheduler.LogLevel)
	fmt.Fprintf(w, "  Tag Prefix:       %s\n", c.Scheduler.TagPrefix)
	fmt.Fprintf(w, "  Aggregate Mode:   %v\n", c.Scheduler.AggregateMode)
	fmt.Fprintf(w, "  Default Schedule: %s\n", c.Scheduler.DefaultSchedule)
	fmt.Fprintf(w, "Workers (%d total, %d enabled):\n", len(c.Workers), len(c.EnabledWorkers()))
	for _, wk := range c.Workers {
		state := "ENABLED"
		if !wk.Enabled {
			state = "DISABLED"
		}
		fmt.Fprintf(w, "  %-20s %-8s %s\n", wk.Name, state, wk.Script)
	}
	if len(c.GlobalEnv) > 0 {
		fmt.Fprintln(w, "Global Environment:")
		keys := make([]string, 0, len(c.GlobalEnv))
		for k := range c.GlobalEnv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s=%s\n", k, c.GlobalEnv[k])
		}
	}
}
