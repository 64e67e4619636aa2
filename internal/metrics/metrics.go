package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	workerLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workerctl",
			Subsystem: "worker",
			Name:      "launches_total",
			Help:      "Number of successful worker launches.",
		}, []string{"worker"},
	)
	workerStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workerctl",
			Subsystem: "worker",
			Name:      "stops_total",
			Help:      "Number of worker stops (graceful or forced).",
		}, []string{"worker"},
	)
	workerRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workerctl",
			Subsystem: "worker",
			Name:      "restarts_total",
			Help:      "Number of worker restarts.",
		}, []string{"worker"},
	)
	runningWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "workerctl",
			Subsystem: "fleet",
			Name:      "running_workers",
			Help:      "Number of workers currently observed running.",
		},
	)
	workerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "workerctl",
			Subsystem: "worker",
			Name:      "state",
			Help:      "Current worker state (1 = active state, 0 = inactive).",
		}, []string{"worker", "state"},
	)
	workerCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "workerctl",
			Subsystem: "worker",
			Name:      "cpu_percent",
			Help:      "Last observed CPU percent per worker.",
		}, []string{"worker"},
	)
	workerMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "workerctl",
			Subsystem: "worker",
			Name:      "memory_mb",
			Help:      "Last observed resident memory in MB per worker.",
		}, []string{"worker"},
	)
)

// Register registers all collectors with the provided registerer. Safe to
// call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		workerLaunches, workerStops, workerRestarts,
		runningWorkers, workerState, workerCPU, workerMemory,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves Prometheus metrics for the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncLaunch(worker string) {
	if regOK.Load() {
		workerLaunches.WithLabelValues(worker).Inc()
	}
}

func IncStop(worker string) {
	if regOK.Load() {
		workerStops.WithLabelValues(worker).Inc()
	}
}

func IncRestart(worker string) {
	if regOK.Load() {
		workerRestarts.WithLabelValues(worker).Inc()
	}
}

func SetRunningWorkers(n int) {
	if regOK.Load() {
		runningWorkers.Set(float64(n))
	}
}

func SetWorkerState(worker, state string, active bool) {
	if regOK.Load() {
		v := 0.0
		if active {
			v = 1
		}
		workerState.WithLabelValues(worker, state).Set(v)
	}
}

func SetWorkerResources(worker string, cpuPercent, memoryMB float64) {
	if regOK.Load() {
		workerCPU.WithLabelValues(worker).Set(cpuPercent)
		workerMemory.WithLabelValues(worker).Set(memoryMB)
	}
}
