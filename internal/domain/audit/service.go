package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

// Trail is the audit service: decision log, statistics and feedback
type Trail struct {
	repo     Repository
	feedback FeedbackRepository
	mirror   Mirror
	clock    *Clock
	log      *logger.Logger
}

// NewTrail creates an audit trail. mirror may be nil.
func NewTrail(repo Repository, feedback FeedbackRepository, mirror Mirror) *Trail {
	return &Trail{
		repo:     repo,
		feedback: feedback,
		mirror:   mirror,
		clock:    NewClock(),
		log:      logger.Get().With("component", "audit_trail"),
	}
}

// AppendEntry durably records a single decision.
// Failures wrap ErrAuditWrite; callers treat them as warnings.
func (t *Trail) AppendEntry(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return errors.WithKind(errors.ErrAuditWrite, err, "invalid audit entry")
	}
	e.ChangedAt = t.clock.Now()

	if err := t.repo.Append(ctx, e); err != nil {
		return errors.WithKind(errors.ErrAuditWrite, err, "append audit entry")
	}

	t.mirrorEntries(ctx, []*Entry{e})
	return nil
}

// AppendBatch records many decisions. Malformed rows are skipped and counted
// as failures; the rest are stored together.
func (t *Trail) AppendBatch(ctx context.Context, entries []*Entry) (success, failure int, err error) {
	valid := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if vErr := e.Validate(); vErr != nil {
			failure++
			t.log.Debugw("Skipping malformed audit entry", "error", vErr)
			continue
		}
		e.ChangedAt = t.clock.Now()
		valid = append(valid, e)
	}

	if len(valid) == 0 {
		return 0, failure, nil
	}

	stored, err := t.repo.AppendBatch(ctx, valid)
	if err != nil {
		return 0, len(entries), errors.WithKind(errors.ErrAuditWrite, err, "append audit batch")
	}
	failure += len(valid) - stored

	if stored > 0 {
		committed := make([]*Entry, 0, stored)
		for _, e := range valid {
			if e.HistoryID != 0 {
				committed = append(committed, e)
			}
		}
		t.mirrorEntries(ctx, committed)
	}

	return stored, failure, nil
}

func (t *Trail) mirrorEntries(ctx context.Context, entries []*Entry) {
	if t.mirror == nil || len(entries) == 0 {
		return
	}
	if err := t.mirror.Mirror(ctx, entries); err != nil {
		t.log.Warnw("Failed to mirror audit entries", "count", len(entries), "error", err)
	}
}

// GetHistory returns a record's entries, newest first
func (t *Trail) GetHistory(ctx context.Context, recordID int64) ([]*Entry, error) {
	entries, err := t.repo.History(ctx, recordID)
	if err != nil {
		return nil, errors.Wrap(err, "get audit history")
	}
	return entries, nil
}

// GetStats returns count and average confidence per source
func (t *Trail) GetStats(ctx context.Context, filter StatsFilter) ([]SourceStats, error) {
	if filter.Since != nil && filter.Until != nil && filter.Until.Before(*filter.Since) {
		return nil, errors.NewValidationError("until", "must not precede since", *filter.Until)
	}
	stats, err := t.repo.Stats(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "get audit stats")
	}
	return stats, nil
}

// SubmitFeedback stores user feedback
func (t *Trail) SubmitFeedback(ctx context.Context, f *Feedback) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.SubmittedAt = t.clock.Now()
	f.Processed = false

	if err := t.feedback.Create(ctx, f); err != nil {
		return errors.Wrap(err, "store feedback")
	}
	return nil
}

// ListUnprocessedFeedback returns feedback not yet used for retraining, oldest first
func (t *Trail) ListUnprocessedFeedback(ctx context.Context, limit int) ([]*Feedback, error) {
	if limit <= 0 {
		limit = 100
	}
	return t.feedback.ListUnprocessed(ctx, limit)
}

// CountUnprocessedFeedback returns the retraining backlog size
func (t *Trail) CountUnprocessedFeedback(ctx context.Context) (int, error) {
	return t.feedback.CountUnprocessed(ctx)
}

// MarkFeedbackProcessed records that feedback was consumed by a training run
func (t *Trail) MarkFeedbackProcessed(ctx context.Context, ids []uuid.UUID, modelID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := t.feedback.MarkProcessed(ctx, ids, modelID, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "mark feedback processed")
	}
	return nil
}
