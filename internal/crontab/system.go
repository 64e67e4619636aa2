package crontab

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/workerctl/workerctl/internal/config"
)

// System abstracts the host's per-identity job table. The real
// implementation shells out to crontab(1); tests substitute an in-memory
// table.
type System interface {
	// Read returns the raw table. A missing table reads as empty, not as
	// an error.
	Read() (string, error)
	// Write replaces the whole table with content.
	Write(content string) error
}

// ExecSystem drives crontab(1). A named identity is passed with -u, which
// requires privileges; the zero identity operates on the caller's own
// table.
type ExecSystem struct {
	identity config.Identity
}

func NewExecSystem(id config.Identity) *ExecSystem {
	return &ExecSystem{identity: id}
}

func (s *ExecSystem) args(extra ...string) []string {
	var args []string
	if !s.identity.IsCurrent() {
		args = append(args, "-u", s.identity.Name)
	}
	return append(args, extra...)
}

func (s *ExecSystem) Read() (string, error) {
	cmd := exec.Command("crontab", s.args("-l")...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// crontab -l exits non-zero when no table exists yet.
		if strings.Contains(strings.ToLower(stderr.String()), "no crontab") {
			return "", nil
		}
		return "", fmt.Errorf("crontab -l: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out.String(), nil
}

func (s *ExecSystem) Write(content string) error {
	cmd := exec.Command("crontab", s.args("-")...)
	cmd.Stdin = strings.NewReader(content)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("crontab write: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
