package memory

import (
	"context"
	"sync"

	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/classification"
)

// Compile-time checks
var (
	_ classification.Repository = (*ClassificationRepository)(nil)
	_ activity.Repository       = (*ActivityRepository)(nil)
)

// ClassificationRepository holds the current-label projection in memory
type ClassificationRepository struct {
	mu   sync.RWMutex
	rows map[int64]*classification.Current
}

// NewClassificationRepository creates an empty projection
func NewClassificationRepository() *ClassificationRepository {
	return &ClassificationRepository{rows: make(map[int64]*classification.Current)}
}

// GetCurrent returns the stored rows for the given records
func (r *ClassificationRepository) GetCurrent(_ context.Context, recordIDs []int64) (map[int64]*classification.Current, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int64]*classification.Current, len(recordIDs))
	for _, id := range recordIDs {
		if row, ok := r.rows[id]; ok {
			c := *row
			out[id] = &c
		}
	}
	return out, nil
}

// Upsert replaces rows, counting label changes
func (r *ClassificationRepository) Upsert(_ context.Context, rows []*classification.Current) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range rows {
		next := *row
		if prev, ok := r.rows[row.RecordID]; ok {
			next.ChangeCount = prev.ChangeCount
			if prev.Label != row.Label {
				next.ChangeCount++
			}
		} else {
			next.ChangeCount = 0
		}
		r.rows[row.RecordID] = &next
	}
	return nil
}

// ActivityRepository serves a fixed record history
type ActivityRepository struct {
	mu      sync.RWMutex
	records []activity.Record
}

// NewActivityRepository creates a record source over records
func NewActivityRepository(records ...activity.Record) *ActivityRepository {
	return &ActivityRepository{records: append([]activity.Record(nil), records...)}
}

// Add appends records to the history
func (r *ActivityRepository) Add(records ...activity.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
}

// FetchAll returns every record
func (r *ActivityRepository) FetchAll(_ context.Context) ([]activity.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]activity.Record(nil), r.records...), nil
}
