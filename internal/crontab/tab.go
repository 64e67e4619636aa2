package crontab

import (
	"regexp"
	"strings"
)

// tagMarker terminates every entry this system owns. Lines without it are
// treated as foreign and passed through untouched.
const tagMarker = "# tag="

// EnvVar is one KEY=VALUE line. Order is preserved because the host
// scheduler evaluates env lines top to bottom.
type EnvVar struct {
	Key   string
	Value string
}

// Entry is one managed job line, possibly preceded by its own env lines.
type Entry struct {
	Tag      string
	Schedule string
	Command  string
	Enabled  bool
	Env      []EnvVar
}

type nodeKind int

const (
	nodeRaw nodeKind = iota
	nodeEnv
	nodeJob
)

// node is one logical unit of the table: a foreign line kept verbatim, a
// global env assignment, or a managed job.
type node struct {
	kind nodeKind
	raw  string
	env  EnvVar
	job  *Entry
}

// tab is the staged, in-memory copy of the whole table.
type tab struct {
	nodes []node
}

var envLineRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)

// parseTab reads raw crontab text. Env lines before the first managed job
// are global; env lines directly above a managed job attach to it.
func parseTab(content string) *tab {
	t := &tab{}
	var pending []EnvVar
	sawJob := false

	// flushPending demotes queued env lines to raw text when no managed
	// job follows them.
	flushPending := func() {
		for _, ev := range pending {
			t.nodes = append(t.nodes, node{kind: nodeRaw, raw: ev.Key + "=" + quoteEnv(ev.Value)})
		}
		pending = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			t.nodes = append(t.nodes, node{kind: nodeRaw, raw: line})
			continue
		}

		if m := envLineRe.FindStringSubmatch(trimmed); m != nil && !strings.HasPrefix(trimmed, "#") {
			ev := EnvVar{Key: m[1], Value: unquoteEnv(m[2])}
			if sawJob {
				pending = append(pending, ev)
			} else {
				t.nodes = append(t.nodes, node{kind: nodeEnv, env: ev})
			}
			continue
		}

		if job, ok := parseJobLine(trimmed); ok {
			job.Env = pending
			pending = nil
			sawJob = true
			t.nodes = append(t.nodes, node{kind: nodeJob, job: job})
			continue
		}

		// Foreign line. Any env lines queued for a managed job were not
		// ours after all.
		flushPending()
		t.nodes = append(t.nodes, node{kind: nodeRaw, raw: line})
	}
	flushPending()

	// Drop the artificial trailing blank produced by splitting on \n.
	if n := len(t.nodes); n > 0 && t.nodes[n-1].kind == nodeRaw && t.nodes[n-1].raw == "" {
		t.nodes = t.nodes[:n-1]
	}
	return t
}

// parseJobLine recognizes lines of the form
//
//	<schedule> <command> # tag=<tag>
//
// optionally commented out when disabled.
func parseJobLine(line string) (*Entry, bool) {
	enabled := true
	body := line
	if strings.HasPrefix(body, "#") {
		rest := strings.TrimSpace(strings.TrimLeft(body, "#"))
		if !strings.Contains(rest, tagMarker) {
			return nil, false
		}
		enabled = false
		body = rest
	}

	idx := strings.LastIndex(body, tagMarker)
	if idx < 0 {
		return nil, false
	}
	tag := strings.TrimSpace(body[idx+len(tagMarker):])
	spec := strings.TrimSpace(body[:idx])
	if tag == "" || spec == "" {
		return nil, false
	}

	var schedExpr, command string
	if strings.HasPrefix(spec, "@") {
		parts := strings.SplitN(spec, " ", 2)
		if len(parts) != 2 {
			return nil, false
		}
		schedExpr = parts[0]
		command = strings.TrimSpace(parts[1])
	} else {
		fields := strings.Fields(spec)
		if len(fields) < 6 {
			return nil, false
		}
		schedExpr = strings.Join(fields[:5], " ")
		command = strings.Join(fields[5:], " ")
	}
	if command == "" {
		return nil, false
	}
	return &Entry{Tag: tag, Schedule: schedExpr, Command: command, Enabled: enabled}, true
}

func unquoteEnv(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func quoteEnv(v string) string {
	if strings.ContainsAny(v, " \t") {
		return "\"" + v + "\""
	}
	return v
}

// render serializes the staged table back to crontab text.
func (t *tab) render() string {
	var b strings.Builder
	for _, n := range t.nodes {
		switch n.kind {
		case nodeRaw:
			b.WriteString(n.raw)
			b.WriteByte('\n')
		case nodeEnv:
			b.WriteString(n.env.Key)
			b.WriteByte('=')
			b.WriteString(quoteEnv(n.env.Value))
			b.WriteByte('\n')
		case nodeJob:
			for _, ev := range n.job.Env {
				b.WriteString(ev.Key)
				b.WriteByte('=')
				b.WriteString(quoteEnv(ev.Value))
				b.WriteByte('\n')
			}
			if !n.job.Enabled {
				b.WriteString("# ")
			}
			b.WriteString(n.job.Schedule)
			b.WriteByte(' ')
			b.WriteString(n.job.Command)
			b.WriteByte(' ')
			b.WriteString(tagMarker)
			b.WriteString(n.job.Tag)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// jobs returns pointers to every managed entry in table order.
func (t *tab) jobs() []*Entry {
	var out []*Entry
	for _, n := range t.nodes {
		if n.kind == nodeJob {
			out = append(out, n.job)
		}
	}
	return out
}

func (t *tab) findJob(tag string) *Entry {
	for _, n := range t.nodes {
		if n.kind == nodeJob && n.job.Tag == tag {
			return n.job
		}
	}
	return nil
}

func (t *tab) appendJob(job *Entry) {
	t.nodes = append(t.nodes, node{kind: nodeJob, job: job})
}

// removeJobs deletes every managed entry the predicate matches and returns
// how many were removed.
func (t *tab) removeJobs(match func(*Entry) bool) int {
	kept := t.nodes[:0]
	removed := 0
	for _, n := range t.nodes {
		if n.kind == nodeJob && match(n.job) {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	t.nodes = kept
	return removed
}

func (t *tab) globalEnv() map[string]string {
	out := make(map[string]string)
	for _, n := range t.nodes {
		if n.kind == nodeEnv {
			out[n.env.Key] = n.env.Value
		}
	}
	return out
}

// setGlobalEnv upserts one top-level env assignment, inserting new keys
// before the first job so the host scheduler sees them for every entry.
func (t *tab) setGlobalEnv(key, value string) {
	for i := range t.nodes {
		if t.nodes[i].kind == nodeEnv && t.nodes[i].env.Key == key {
			t.nodes[i].env.Value = value
			return
		}
	}
	n := node{kind: nodeEnv, env: EnvVar{Key: key, Value: value}}
	for i := range t.nodes {
		if t.nodes[i].kind == nodeJob {
			t.nodes = append(t.nodes[:i], append([]node{n}, t.nodes[i:]...)...)
			return
		}
	}
	t.nodes = append(t.nodes, n)
}
