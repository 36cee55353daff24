package bootstrap

import (
	"context"
	"sync"
	"time"

	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 2 * time.Minute,
	}
}

// Shutdown performs coordinated cleanup in this order:
// 1. Stop serving metrics
// 2. Workers finish their current iteration (a retrain may be in flight)
// 3. Buffered audit rows reach ClickHouse
// 4. Kafka producer flushes
// 5. Errors and logs are flushed
// 6. Stores close last, since everything above may still write to them
func (l *Lifecycle) Shutdown(c *Container) {
	log := c.Log
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	if c.metricsServer != nil {
		log.Info("[1/7] Stopping metrics server...")
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := c.metricsServer.Shutdown(httpCtx); err != nil {
			log.Errorw("Metrics server shutdown failed", "error", err)
		}
		httpCancel()
	}

	if c.Background.WorkerScheduler != nil && c.Background.WorkerScheduler.IsRunning() {
		log.Info("[2/7] Stopping background workers...")
		if err := c.Background.WorkerScheduler.Stop(); err != nil {
			log.Errorw("Workers shutdown failed", "error", err)
		} else {
			log.Info("✓ Workers stopped")
		}
	}

	l.waitForGoroutines(c.WG, 5*time.Second, log)

	if c.Adapters.AuditMirror != nil {
		log.Debug("[3/7] Flushing audit mirror...")
		if err := c.Adapters.AuditMirror.Stop(shutdownCtx); err != nil {
			log.Errorw("Audit mirror flush failed", "error", err)
		}
	}

	if c.Adapters.KafkaProducer != nil {
		log.Debug("[4/7] Closing Kafka producer...")
		if err := c.Adapters.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		}
	}

	log.Debug("[5/7] Flushing error tracker...")
	l.flushErrorTracker(shutdownCtx, c.ErrorTracker, log)

	log.Debug("[6/7] Closing stores...")
	l.closeStores(c, log)

	// Logs last so the lines above are not lost
	_ = logger.Sync()
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	}
}

// closeStores closes the artifact store and database connections
func (l *Lifecycle) closeStores(c *Container, log *logger.Logger) {
	errs := &errors.MultiError{}

	if c.Adapters.Badger != nil {
		if err := c.Adapters.Badger.Close(); err != nil {
			errs.Add(errors.Wrap(err, "badger"))
		}
	}
	if c.PG != nil {
		if err := c.PG.Close(); err != nil {
			errs.Add(errors.Wrap(err, "postgres"))
		}
	}
	if c.CH != nil {
		if err := c.CH.Close(); err != nil {
			errs.Add(errors.Wrap(err, "clickhouse"))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs.Add(errors.Wrap(err, "redis"))
		}
	}

	if err := errs.ToError(); err != nil {
		log.Errorw("Store close errors", "error", err)
		return
	}
	log.Debug("✓ Stores closed")
}
