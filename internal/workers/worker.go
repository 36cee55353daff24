package workers

import (
	"context"
	"sync"
	"time"

	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

// Worker is a periodic background job
type Worker interface {
	// Name returns the unique identifier for this worker
	Name() string

	// Run executes one iteration and returns; the scheduler calls it every Interval().
	// Returning a *SkipError records the iteration as skipped, not failed.
	Run(ctx context.Context) error

	Interval() time.Duration

	Enabled() bool

	// RunOnStart reports whether the first iteration happens immediately
	// instead of after one interval
	RunOnStart() bool
}

// WorkerWithHealth is a worker that keeps its own run statistics
type WorkerWithHealth interface {
	Worker
	Health() WorkerHealth
	RecordRun(duration time.Duration)
	RecordSkip(reason string)
	RecordError(err error, duration time.Duration)
}

// SkipError marks an iteration that had nothing to do, e.g. another
// process holds the lock or the feedback threshold is not reached
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return "skipped: " + e.Reason }

// Skip returns a SkipError for reason
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// IsSkip reports whether err marks a skipped iteration
func IsSkip(err error) (string, bool) {
	var skip *SkipError
	if errors.As(err, &skip) {
		return skip.Reason, true
	}
	return "", false
}

// WorkerHealth contains health information for a worker
type WorkerHealth struct {
	Enabled           bool          `json:"enabled"`
	LastRun           time.Time     `json:"last_run"`
	LastSuccess       time.Time     `json:"last_success"`
	LastError         error         `json:"-"`
	LastSkipReason    string        `json:"last_skip_reason,omitempty"`
	RunCount          int64         `json:"run_count"`
	ErrorCount        int64         `json:"error_count"`
	SkipCount         int64         `json:"skip_count"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	AvgDuration       time.Duration `json:"avg_duration"`
}

// Failing reports whether the most recent completed iteration failed.
// Skips neither clear nor raise it.
func (h WorkerHealth) Failing() bool {
	return h.Enabled && h.ConsecutiveErrors > 0
}

// BaseWorker provides naming, scheduling and health bookkeeping for workers
type BaseWorker struct {
	name       string
	interval   time.Duration
	enabled    bool
	runOnStart bool
	log        *logger.Logger

	healthMu          sync.RWMutex
	lastRun           time.Time
	lastSuccess       time.Time
	lastError         error
	lastSkipReason    string
	runCount          int64
	errorCount        int64
	skipCount         int64
	consecutiveErrors int
	totalDuration     time.Duration
}

// NewBaseWorker creates a base worker whose first iteration waits one interval
func NewBaseWorker(name string, interval time.Duration, enabled bool) *BaseWorker {
	return &BaseWorker{
		name:     name,
		interval: interval,
		enabled:  enabled,
		log:      logger.Get().With("worker", name),
	}
}

// WithRunOnStart makes the scheduler run the worker as soon as it starts
func (w *BaseWorker) WithRunOnStart() *BaseWorker {
	w.runOnStart = true
	return w
}

func (w *BaseWorker) Name() string { return w.name }

func (w *BaseWorker) Interval() time.Duration { return w.interval }

func (w *BaseWorker) RunOnStart() bool { return w.runOnStart }

// Enabled returns whether the worker is enabled
func (w *BaseWorker) Enabled() bool {
	w.healthMu.RLock()
	defer w.healthMu.RUnlock()
	return w.enabled
}

// Log returns the logger
func (w *BaseWorker) Log() *logger.Logger {
	return w.log
}

// Health returns health information for the worker
func (w *BaseWorker) Health() WorkerHealth {
	w.healthMu.RLock()
	defer w.healthMu.RUnlock()

	var avg time.Duration
	if completed := w.runCount; completed > 0 {
		avg = time.Duration(int64(w.totalDuration) / completed)
	}

	return WorkerHealth{
		Enabled:           w.enabled,
		LastRun:           w.lastRun,
		LastSuccess:       w.lastSuccess,
		LastError:         w.lastError,
		LastSkipReason:    w.lastSkipReason,
		RunCount:          w.runCount,
		ErrorCount:        w.errorCount,
		SkipCount:         w.skipCount,
		ConsecutiveErrors: w.consecutiveErrors,
		AvgDuration:       avg,
	}
}

// RecordRun records a successful run
func (w *BaseWorker) RecordRun(duration time.Duration) {
	w.healthMu.Lock()
	defer w.healthMu.Unlock()

	now := time.Now()
	w.lastRun = now
	w.lastSuccess = now
	w.runCount++
	w.totalDuration += duration
	w.lastError = nil
	w.consecutiveErrors = 0
}

// RecordSkip records an iteration that had nothing to do
func (w *BaseWorker) RecordSkip(reason string) {
	w.healthMu.Lock()
	defer w.healthMu.Unlock()

	w.lastRun = time.Now()
	w.skipCount++
	w.lastSkipReason = reason
}

// RecordError records a failed run
func (w *BaseWorker) RecordError(err error, duration time.Duration) {
	w.healthMu.Lock()
	defer w.healthMu.Unlock()

	w.lastRun = time.Now()
	w.runCount++
	w.errorCount++
	w.consecutiveErrors++
	w.totalDuration += duration
	w.lastError = err
}
