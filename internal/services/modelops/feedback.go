package modelops

import (
	"context"

	"github.com/google/uuid"

	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
	"pacelab/internal/metrics"
	"pacelab/pkg/errors"
)

// SubmitFeedback stores user feedback. A correction or rejection that names a
// label also becomes a user-sourced audit entry and the record's current label.
// Only the feedback write itself can fail the call.
func (s *Service) SubmitFeedback(ctx context.Context, f *audit.Feedback) error {
	if err := s.trail.SubmitFeedback(ctx, f); err != nil {
		return err
	}

	if !f.OverridesLabel() {
		return nil
	}

	var previous *classification.Label
	current, err := s.projection.GetCurrent(ctx, []int64{f.RecordID})
	if err != nil {
		s.log.Warnw("Failed to read current classification", "record_id", f.RecordID, "error", err)
	} else if row, ok := current[f.RecordID]; ok {
		label := row.Label
		previous = &label
	}

	confidence := manualConfidence(f)
	entry := &audit.Entry{
		RecordID:      f.RecordID,
		PreviousLabel: previous,
		NewLabel:      *f.UserLabel,
		Source:        audit.SourceUser,
		Confidence:    &confidence,
		Method:        classification.MethodManual,
		ChangedBy:     changedByUser,
		Reason:        "feedback:" + string(f.Type),
	}
	if err := s.trail.AppendEntry(ctx, entry); err != nil {
		metrics.RecordAuditWrites(0, 1)
		s.log.Warnw("Failed to audit feedback override", "record_id", f.RecordID, "error", err)
	} else {
		metrics.RecordAuditWrites(1, 0)
	}

	row := &classification.Current{
		RecordID:     f.RecordID,
		Label:        *f.UserLabel,
		Confidence:   confidence,
		Method:       classification.MethodManual,
		ClassifiedAt: f.SubmittedAt,
	}
	if err := s.projection.Upsert(ctx, []*classification.Current{row}); err != nil {
		s.log.Warnw("Failed to apply feedback label", "record_id", f.RecordID, "error", err)
	}
	return nil
}

// manualConfidence maps the optional 1-5 certainty onto [0.2, 1]
func manualConfidence(f *audit.Feedback) float64 {
	if f.Certainty == nil {
		return 1
	}
	return float64(*f.Certainty) / 5
}

// RetrainFromFeedback retrains once at least threshold feedback records are
// waiting. The consumed feedback is marked processed against the new model.
// It returns nil and no error when the backlog is below threshold.
func (s *Service) RetrainFromFeedback(ctx context.Context, threshold int) (*TrainingOutcome, error) {
	pending, err := s.trail.CountUnprocessedFeedback(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count unprocessed feedback")
	}
	metrics.FeedbackPending.Set(float64(pending))
	if pending == 0 || pending < threshold {
		return nil, nil
	}

	backlog, err := s.trail.ListUnprocessedFeedback(ctx, pending)
	if err != nil {
		return nil, errors.Wrap(err, "list unprocessed feedback")
	}

	s.log.Infow("Feedback threshold reached, retraining", "pending", pending, "threshold", threshold)
	outcome, err := s.Train(ctx, true)
	if err != nil {
		return outcome, err
	}

	ids := make([]uuid.UUID, 0, len(backlog))
	for _, f := range backlog {
		ids = append(ids, f.ID)
	}
	if err := s.trail.MarkFeedbackProcessed(ctx, ids, outcome.Model.ID); err != nil {
		return outcome, errors.Wrap(err, "mark feedback processed")
	}
	metrics.FeedbackPending.Set(float64(pending - len(ids)))
	return outcome, nil
}
