package clickhouse

import (
	"context"
	"sync"
	"time"

	"pacelab/pkg/logger"
)

// FlushFunc writes one batch. It must be safe to call again with the same
// items after a failure.
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// BatchWriter accumulates rows in memory and flushes them in batches, either
// when the buffer is full or on a timer. A failed batch is put back in front
// of the buffer; once the buffer exceeds MaxBuffered the oldest rows are dropped.
type BatchWriter[T any] struct {
	flushFunc FlushFunc[T]
	buffer    []T
	mu        sync.Mutex
	log       *logger.Logger

	maxBatchSize int
	maxBuffered  int
	maxAge       time.Duration
	tableName    string

	lastFlush time.Time
	dropped   int
	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
}

// BatchWriterConfig contains configuration for BatchWriter
type BatchWriterConfig[T any] struct {
	FlushFunc    FlushFunc[T]
	TableName    string
	MaxBatchSize int           // Default: 500
	MaxBuffered  int           // Default: 4 * MaxBatchSize
	MaxAge       time.Duration // Default: 5s
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter[T any](cfg BatchWriterConfig[T]) *BatchWriter[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxBuffered < cfg.MaxBatchSize {
		cfg.MaxBuffered = 4 * cfg.MaxBatchSize
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}

	return &BatchWriter[T]{
		flushFunc:    cfg.FlushFunc,
		buffer:       make([]T, 0, cfg.MaxBatchSize),
		maxBatchSize: cfg.MaxBatchSize,
		maxBuffered:  cfg.MaxBuffered,
		maxAge:       cfg.MaxAge,
		tableName:    cfg.TableName,
		lastFlush:    time.Now(),
		stopCh:       make(chan struct{}),
		log:          logger.Get().With("component", "batch_writer", "table", cfg.TableName),
	}
}

// Start begins the background flush ticker
func (bw *BatchWriter[T]) Start(ctx context.Context) {
	bw.mu.Lock()
	if bw.running {
		bw.mu.Unlock()
		return
	}
	bw.running = true
	bw.ticker = time.NewTicker(bw.maxAge)
	bw.mu.Unlock()

	bw.wg.Add(1)
	go bw.flushLoop(ctx)

	bw.log.Infow("BatchWriter started", "max_batch_size", bw.maxBatchSize, "max_age", bw.maxAge)
}

// Add appends rows to the buffer and flushes when it reaches maxBatchSize
func (bw *BatchWriter[T]) Add(ctx context.Context, items ...T) error {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, items...)
	shouldFlush := len(bw.buffer) >= bw.maxBatchSize
	bw.mu.Unlock()

	if shouldFlush {
		return bw.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered rows
func (bw *BatchWriter[T]) Flush(ctx context.Context) error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}

	batch := bw.buffer
	bw.buffer = make([]T, 0, bw.maxBatchSize)
	bw.lastFlush = time.Now()
	bw.mu.Unlock()

	// Flush outside of lock to avoid blocking Add() calls
	start := time.Now()
	err := bw.flushFunc(ctx, batch)
	duration := time.Since(start)

	if err != nil {
		bw.requeue(batch)
		bw.log.Errorw("Failed to flush batch",
			"table", bw.tableName,
			"count", len(batch),
			"duration", duration,
			"error", err,
		)
		return err
	}

	bw.log.Debugw("Flushed batch", "count", len(batch), "duration", duration)
	return nil
}

// requeue puts a failed batch back in front of anything added meanwhile
func (bw *BatchWriter[T]) requeue(batch []T) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	merged := make([]T, 0, len(batch)+len(bw.buffer))
	merged = append(merged, batch...)
	merged = append(merged, bw.buffer...)

	if over := len(merged) - bw.maxBuffered; over > 0 {
		bw.dropped += over
		merged = merged[over:]
		bw.log.Warnw("Batch buffer overflow, dropping oldest rows", "dropped", over, "total_dropped", bw.dropped)
	}
	bw.buffer = merged
}

// flushLoop runs in background and flushes periodically
func (bw *BatchWriter[T]) flushLoop(ctx context.Context) {
	defer bw.wg.Done()

	for {
		select {
		case <-ctx.Done():
			bw.log.Info("BatchWriter stopping, performing final flush...")
			if err := bw.Flush(context.Background()); err != nil {
				bw.log.Errorw("Final flush failed", "error", err)
			}
			return

		case <-bw.stopCh:
			bw.log.Info("BatchWriter received stop signal, performing final flush...")
			if err := bw.Flush(context.Background()); err != nil {
				bw.log.Errorw("Final flush failed", "error", err)
			}
			return

		case <-bw.ticker.C:
			if bw.BufferSize() > 0 {
				if err := bw.Flush(ctx); err != nil {
					bw.log.Errorw("Periodic flush failed", "error", err)
				}
			}
		}
	}
}

// Stop flushes any remaining rows and waits for the loop to exit
func (bw *BatchWriter[T]) Stop(ctx context.Context) error {
	bw.mu.Lock()
	if !bw.running {
		bw.mu.Unlock()
		return nil
	}
	bw.running = false
	bw.mu.Unlock()

	if bw.ticker != nil {
		bw.ticker.Stop()
	}
	close(bw.stopCh)

	done := make(chan struct{})
	go func() {
		bw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		bw.log.Info("BatchWriter stopped gracefully")
		return nil
	case <-ctx.Done():
		bw.log.Warn("BatchWriter stop timed out")
		return ctx.Err()
	}
}

// BufferSize returns the current buffer size
func (bw *BatchWriter[T]) BufferSize() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// BatchWriterStats is a point-in-time view of the writer
type BatchWriterStats struct {
	BufferSize   int
	Dropped      int
	LastFlushAge time.Duration
	MaxBatchSize int
	MaxAge       time.Duration
	Running      bool
}

// GetStats returns current statistics
func (bw *BatchWriter[T]) GetStats() BatchWriterStats {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	return BatchWriterStats{
		BufferSize:   len(bw.buffer),
		Dropped:      bw.dropped,
		LastFlushAge: time.Since(bw.lastFlush),
		MaxBatchSize: bw.maxBatchSize,
		MaxAge:       bw.maxAge,
		Running:      bw.running,
	}
}
