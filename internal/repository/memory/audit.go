package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pacelab/internal/domain/audit"
	"pacelab/pkg/errors"
)

// Compile-time checks
var (
	_ audit.Repository         = (*AuditRepository)(nil)
	_ audit.FeedbackRepository = (*FeedbackRepository)(nil)
)

// AuditRepository is an in-memory append-only log
type AuditRepository struct {
	mu      sync.RWMutex
	entries []*audit.Entry
	nextID  int64

	// FailRecord makes appends for that record fail; used to exercise partial batches
	FailRecord map[int64]bool
}

// NewAuditRepository creates an empty log
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{FailRecord: make(map[int64]bool)}
}

// Append stores one entry
func (r *AuditRepository) Append(_ context.Context, e *audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(e)
}

func (r *AuditRepository) appendLocked(e *audit.Entry) error {
	if r.FailRecord[e.RecordID] {
		return errors.Wrapf(errors.ErrInternal, "append record %d", e.RecordID)
	}
	r.nextID++
	e.HistoryID = r.nextID
	stored := *e
	r.entries = append(r.entries, &stored)
	return nil
}

// AppendBatch stores every entry it can
func (r *AuditRepository) AppendBatch(_ context.Context, entries []*audit.Entry) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := 0
	for _, e := range entries {
		if err := r.appendLocked(e); err == nil {
			stored++
		}
	}
	return stored, nil
}

// History returns entries for a record, newest first
func (r *AuditRepository) History(_ context.Context, recordID int64) ([]*audit.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*audit.Entry, 0)
	for _, e := range r.entries {
		if e.RecordID == recordID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ChangedAt.Equal(out[j].ChangedAt) {
			return out[i].HistoryID > out[j].HistoryID
		}
		return out[i].ChangedAt.After(out[j].ChangedAt)
	})
	return out, nil
}

// Stats aggregates entries per source within the filter window
func (r *AuditRepository) Stats(_ context.Context, filter audit.StatsFilter) ([]audit.SourceStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type acc struct {
		count, withConf int
		sum             float64
	}
	bySource := make(map[audit.Source]*acc)
	for _, e := range r.entries {
		if filter.Since != nil && e.ChangedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && e.ChangedAt.After(*filter.Until) {
			continue
		}
		a, ok := bySource[e.Source]
		if !ok {
			a = &acc{}
			bySource[e.Source] = a
		}
		a.count++
		if e.Confidence != nil {
			a.withConf++
			a.sum += *e.Confidence
		}
	}

	out := make([]audit.SourceStats, 0, len(bySource))
	for source, a := range bySource {
		s := audit.SourceStats{Source: source, Count: a.count}
		if a.withConf > 0 {
			s.AvgConfidence = a.sum / float64(a.withConf)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

// FeedbackRepository keeps feedback and its processing log in memory
type FeedbackRepository struct {
	mu        sync.RWMutex
	feedback  []*audit.Feedback
	processed map[uuid.UUID]uuid.UUID
}

// NewFeedbackRepository creates an empty feedback store
func NewFeedbackRepository() *FeedbackRepository {
	return &FeedbackRepository{processed: make(map[uuid.UUID]uuid.UUID)}
}

// Create stores feedback
func (r *FeedbackRepository) Create(_ context.Context, f *audit.Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.feedback {
		if existing.ID == f.ID {
			return errors.Wrap(errors.ErrAlreadyExists, "feedback exists")
		}
	}
	c := *f
	r.feedback = append(r.feedback, &c)
	return nil
}

// ListUnprocessed returns unprocessed feedback in submission order
func (r *FeedbackRepository) ListUnprocessed(_ context.Context, limit int) ([]*audit.Feedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*audit.Feedback, 0)
	for _, f := range r.feedback {
		if _, done := r.processed[f.ID]; done {
			continue
		}
		c := *f
		out = append(out, &c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// CountUnprocessed returns the number of unprocessed feedback rows
func (r *FeedbackRepository) CountUnprocessed(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, f := range r.feedback {
		if _, done := r.processed[f.ID]; !done {
			count++
		}
	}
	return count, nil
}

// MarkProcessed records the model that consumed the feedback
func (r *FeedbackRepository) MarkProcessed(_ context.Context, ids []uuid.UUID, modelID uuid.UUID, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if _, done := r.processed[id]; !done {
			r.processed[id] = modelID
		}
	}
	return nil
}
