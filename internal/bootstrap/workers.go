package bootstrap

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pacelab/internal/metrics"
	"pacelab/internal/workers"
	"pacelab/internal/workers/lifecycle"
)

// ========================================
// Phase 6: Background Processing
// ========================================

func (c *Container) initBackground() error {
	c.Background.WorkerScheduler = provideWorkers(c)
	return nil
}

// provideWorkers registers the model lifecycle workers
func provideWorkers(c *Container) *workers.Scheduler {
	cfg := c.Config.Workers
	scheduler := workers.NewScheduler()
	// A feedback retrain may run up to the training timeout
	scheduler.SetShutdownTimeout(c.Config.Model.TrainingTimeout + 30*time.Second)

	scheduler.RegisterWorker(lifecycle.NewIntegrityChecker(
		c.Services.ModelOps,
		cfg.IntegrityInterval,
		cfg.IntegrityEnabled,
	))

	var locker lifecycle.Locker
	if c.Redis != nil {
		locker = c.Redis
	}
	scheduler.RegisterWorker(lifecycle.NewFeedbackRetrainer(
		c.Services.ModelOps,
		locker,
		cfg.RetrainFeedbackThreshold,
		cfg.RetrainLockTTL,
		cfg.RetrainInterval,
		cfg.RetrainEnabled,
	))

	c.Log.Debugw("✓ Workers registered", "count", len(scheduler.GetWorkers()))
	return scheduler
}

// startMetricsServer serves /metrics and /healthz until the container context ends
func (c *Container) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", c.healthHandler)

	c.metricsServer = &http.Server{
		Addr:              c.Config.App.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		c.Log.Infow("Metrics server listening", "addr", c.Config.App.MetricsAddr)
		if err := c.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.Log.Errorw("Metrics server failed", "error", err)
			c.Cancel()
		}
	}()
}

// healthHandler reports 503 while any worker's last completed run failed or
// the datastore is unreachable. The body lists per-worker health.
func (c *Container) healthHandler(w http.ResponseWriter, r *http.Request) {
	report := struct {
		Status   string                          `json:"status"`
		Postgres string                          `json:"postgres"`
		Workers  map[string]workers.WorkerHealth `json:"workers"`
	}{Status: "ok", Postgres: "ok", Workers: c.Background.WorkerScheduler.Health()}

	code := http.StatusOK
	if err := c.PG.Health(r.Context()); err != nil {
		code = http.StatusServiceUnavailable
		report.Postgres = err.Error()
	}
	for _, h := range report.Workers {
		if h.Failing() {
			code = http.StatusServiceUnavailable
		}
	}
	if code != http.StatusOK {
		report.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

func (c *Container) clickhouseConn() driver.Conn {
	if c.CH == nil {
		return nil
	}
	return c.CH.Conn()
}
