package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the append-only decision log.
// Append assigns HistoryID. AppendBatch commits every row it can in one
// transaction and returns how many were stored; a failing row does not abort the rest.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	AppendBatch(ctx context.Context, entries []*Entry) (stored int, err error)
	History(ctx context.Context, recordID int64) ([]*Entry, error)
	Stats(ctx context.Context, filter StatsFilter) ([]SourceStats, error)
}

// FeedbackRepository stores user feedback and its processing log
type FeedbackRepository interface {
	Create(ctx context.Context, f *Feedback) error
	ListUnprocessed(ctx context.Context, limit int) ([]*Feedback, error)
	CountUnprocessed(ctx context.Context) (int, error)
	MarkProcessed(ctx context.Context, ids []uuid.UUID, modelID uuid.UUID, at time.Time) error
}

// Mirror receives entries after they are durably appended
type Mirror interface {
	Mirror(ctx context.Context, entries []*Entry) error
}
