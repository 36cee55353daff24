package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Noop discards every write. It satisfies both repositories so a Trail is always present.
type Noop struct{}

var (
	_ Repository         = Noop{}
	_ FeedbackRepository = Noop{}
)

func (Noop) Append(context.Context, *Entry) error { return nil }

func (Noop) AppendBatch(_ context.Context, entries []*Entry) (int, error) {
	return len(entries), nil
}

func (Noop) History(context.Context, int64) ([]*Entry, error) { return nil, nil }

func (Noop) Stats(context.Context, StatsFilter) ([]SourceStats, error) { return nil, nil }

func (Noop) Create(context.Context, *Feedback) error { return nil }

func (Noop) ListUnprocessed(context.Context, int) ([]*Feedback, error) { return nil, nil }

func (Noop) CountUnprocessed(context.Context) (int, error) { return 0, nil }

func (Noop) MarkProcessed(context.Context, []uuid.UUID, uuid.UUID, time.Time) error { return nil }

// NewNoopTrail returns a trail that records nothing
func NewNoopTrail() *Trail {
	return NewTrail(Noop{}, Noop{}, nil)
}
