package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pacelab/internal/metrics"
	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

const defaultShutdownTimeout = 2 * time.Minute

// Scheduler runs registered workers on their intervals
type Scheduler struct {
	workers         []Worker
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	mu              sync.RWMutex
	log             *logger.Logger
	started         bool
	shutdownTimeout time.Duration
}

// NewScheduler creates a new worker scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		workers:         make([]Worker, 0),
		log:             logger.Get().With("component", "scheduler"),
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// SetShutdownTimeout bounds how long Stop waits for running iterations.
// A training run triggered by a worker can take minutes.
func (s *Scheduler) SetShutdownTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.shutdownTimeout = d
	}
}

// RegisterWorker adds a worker to the scheduler
func (s *Scheduler) RegisterWorker(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.log.Warnw("Cannot register worker after scheduler has started", "worker", w.Name())
		return
	}

	s.workers = append(s.workers, w)
	s.log.Infow("Worker registered", "worker", w.Name(), "interval", w.Interval())
}

// Start begins running all registered workers
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInternal, "scheduler already started")
	}

	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	workers := append([]Worker(nil), s.workers...)
	s.mu.Unlock()

	s.log.Infow("Starting worker scheduler", "workers", len(workers))

	for _, worker := range workers {
		if !worker.Enabled() {
			s.log.Infow("Skipping disabled worker", "worker", worker.Name())
			continue
		}

		s.wg.Add(1)
		go s.runWorker(worker)
	}

	return nil
}

// Stop cancels all workers and waits for in-flight iterations
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInternal, "scheduler not started")
	}
	s.cancel()
	timeout := s.shutdownTimeout
	s.mu.Unlock()

	s.log.Info("Stopping worker scheduler...")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var shutdownErr error
	select {
	case <-done:
		s.log.Info("All workers stopped gracefully")
	case <-time.After(timeout):
		s.log.Warnw("Worker shutdown timed out", "timeout", timeout)
		shutdownErr = errors.Wrapf(errors.ErrTimeout, "shutdown timeout after %s", timeout)
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	return shutdownErr
}

// runWorker executes a single worker in a loop
func (s *Scheduler) runWorker(worker Worker) {
	defer s.wg.Done()

	ticker := time.NewTicker(worker.Interval())
	defer ticker.Stop()

	if worker.RunOnStart() {
		s.executeWorker(worker)
	}

	for {
		select {
		case <-s.ctx.Done():
			s.log.Infow("Worker stopping", "worker", worker.Name())
			return

		case <-ticker.C:
			s.executeWorker(worker)
		}
	}
}

// executeWorker runs one iteration, recording health and metrics
func (s *Scheduler) executeWorker(worker Worker) {
	start := time.Now()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(errors.ErrInternal, "worker panicked: %v", fmt.Sprint(r))
		}

		duration := time.Since(start)
		h, tracked := worker.(WorkerWithHealth)

		if reason, skipped := IsSkip(err); skipped {
			metrics.RecordWorkerSkip(worker.Name())
			if tracked {
				h.RecordSkip(reason)
			}
			s.log.Debugw("Worker iteration skipped", "worker", worker.Name(), "reason", reason)
			return
		}

		metrics.RecordWorkerExecution(worker.Name(), duration, err)
		if err != nil {
			if tracked {
				h.RecordError(err, duration)
			}
			s.log.Errorw("Worker execution failed",
				"worker", worker.Name(),
				"error", err,
				"duration", duration,
			)
			return
		}

		if tracked {
			h.RecordRun(duration)
		}
		s.log.Debugw("Worker execution completed", "worker", worker.Name(), "duration", duration)
	}()

	err = worker.Run(s.ctx)
}

// GetWorkers returns a list of all registered workers
func (s *Scheduler) GetWorkers() []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workers := make([]Worker, len(s.workers))
	copy(workers, s.workers)
	return workers
}

// Health returns run statistics for every worker that keeps them
func (s *Scheduler) Health() map[string]WorkerHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]WorkerHealth, len(s.workers))
	for _, w := range s.workers {
		if h, ok := w.(WorkerWithHealth); ok {
			out[w.Name()] = h.Health()
		}
	}
	return out
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
