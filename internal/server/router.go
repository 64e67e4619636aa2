package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/workerctl/workerctl/internal/crontab"
	"github.com/workerctl/workerctl/internal/metrics"
	"github.com/workerctl/workerctl/internal/orchestrator"
)

// Router exposes a read-only HTTP view of the fleet.
// Endpoints:
//
//	GET {basePath}/api/status           all worker snapshots
//	GET {basePath}/api/status?worker=x  one worker snapshot
//	GET {basePath}/api/stats            merged system statistics
//	GET {basePath}/api/jobs             schedule entries owned by this system
//	GET {basePath}/api/config/workers   worker configurations
//	GET {basePath}/metrics              Prometheus metrics
//
// The surface never mutates anything; stop/start stay on the CLI.
type Router struct {
	sys      *orchestrator.System
	basePath string
}

func NewRouter(sys *orchestrator.System, basePath string) *Router {
	return &Router{sys: sys, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler that can be mounted in any mux.
func (r *Router) Handler() http.Handler {
	_ = metrics.Register(prometheus.DefaultRegisterer)

	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/api/status", r.handleStatus)
	group.GET("/api/stats", r.handleStats)
	group.GET("/api/jobs", r.handleJobs)
	group.GET("/api/config/workers", r.handleWorkers)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sys *orchestrator.System) *http.Server {
	r := NewRouter(sys, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("worker")
	if name == "" {
		writeJSON(c, http.StatusOK, r.sys.WorkerStatuses())
		return
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid worker name"})
		return
	}
	if _, ok := r.sys.Config().GetWorker(name); !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown worker: " + name})
		return
	}
	writeJSON(c, http.StatusOK, r.sys.ProcessManager().GetStatus(name))
}

func (r *Router) handleStats(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sys.GetSystemStats())
}

func (r *Router) handleJobs(c *gin.Context) {
	jobs := r.sys.Jobs()
	if jobs == nil {
		jobs = []crontab.Info{}
	}
	writeJSON(c, http.StatusOK, jobs)
}

func (r *Router) handleWorkers(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sys.Config().Workers)
}
