package procmgr

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/workerctl/workerctl/internal/metrics"
	"github.com/workerctl/workerctl/internal/monitor"
)

// SystemStats aggregates the fleet into counters and resource totals.
type SystemStats struct {
	TotalWorkers    int       `json:"total_workers"`
	RunningWorkers  int       `json:"running_workers"`
	StoppedWorkers  int       `json:"stopped_workers"`
	TotalCPUPercent float64   `json:"total_cpu_percent"`
	TotalMemoryMB   float64   `json:"total_memory_mb"`
	Timestamp       time.Time `json:"timestamp"`
}

// StatusReport is the exportable snapshot of the whole fleet.
type StatusReport struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Stats       SystemStats             `json:"stats"`
	Workers     map[string]monitor.Info `json:"workers"`
}

// GetSystemStats sums per-worker snapshots into fleet totals. Workers in
// any non-running state count as stopped.
func (m *Manager) GetSystemStats(names []string) SystemStats {
	stats := SystemStats{TotalWorkers: len(names), Timestamp: time.Now()}
	for name, info := range m.mon.StatusAll(names) {
		if info.Running() {
			stats.RunningWorkers++
			stats.TotalCPUPercent += info.CPUPercent
			stats.TotalMemoryMB += info.MemoryMB
		} else {
			stats.StoppedWorkers++
		}
		metrics.SetWorkerState(name, string(info.State), info.Running())
		metrics.SetWorkerResources(name, info.CPUPercent, info.MemoryMB)
	}
	metrics.SetRunningWorkers(stats.RunningWorkers)
	return stats
}

// ExportStatusReport builds a full snapshot and, when path is non-empty,
// writes it out as indented JSON.
func (m *Manager) ExportStatusReport(names []string, path string) (StatusReport, error) {
	report := StatusReport{
		GeneratedAt: time.Now(),
		Stats:       m.GetSystemStats(names),
		Workers:     m.mon.StatusAll(names),
	}
	if path == "" {
		return report, nil
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return report, fmt.Errorf("encode status report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return report, fmt.Errorf("write status report: %w", err)
	}
	return report, nil
}

// PrintStatusSummary writes a human-readable fleet table.
func (m *Manager) PrintStatusSummary(w io.Writer, names []string) {
	statuses := m.mon.StatusAll(names)
	sorted := make([]string, 0, len(statuses))
	for name := range statuses {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	fmt.Fprintf(w, "%-24s %-12s %8s %8s %10s\n", "WORKER", "STATE", "PID", "CPU%", "MEM(MB)")
	for _, name := range sorted {
		info := statuses[name]
		pid := "-"
		if info.PID > 0 {
			pid = fmt.Sprintf("%d", info.PID)
		}
		fmt.Fprintf(w, "%-24s %-12s %8s %8.1f %10.1f\n",
			name, info.State, pid, info.CPUPercent, info.MemoryMB)
	}
	stats := m.GetSystemStats(names)
	fmt.Fprintf(w, "\n%d running, %d stopped of %d workers\n",
		stats.RunningWorkers, stats.StoppedWorkers, stats.TotalWorkers)
}
