package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pacelab/internal/domain/audit"
	"pacelab/pkg/errors"
)

// Compile-time check
var _ audit.FeedbackRepository = (*FeedbackRepository)(nil)

// FeedbackRepository implements audit.FeedbackRepository.
// Feedback rows are never updated; processing is recorded in feedback_processing.
type FeedbackRepository struct {
	db *sqlx.DB
}

// NewFeedbackRepository creates a new feedback repository
func NewFeedbackRepository(db *sqlx.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Create inserts feedback
func (r *FeedbackRepository) Create(ctx context.Context, f *audit.Feedback) error {
	var userLabel *string
	if f.UserLabel != nil {
		l := string(*f.UserLabel)
		userLabel = &l
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO classification_feedback (
			feedback_id, record_id, ai_label, ai_confidence, user_label,
			feedback_type, certainty, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.RecordID, string(f.AILabel), f.AIConfidence, userLabel,
		string(f.Type), f.Certainty, f.SubmittedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(errors.ErrAlreadyExists, "feedback exists")
		}
		return errors.Wrap(err, "failed to create feedback")
	}
	return nil
}

// ListUnprocessed returns feedback without a processing record, oldest first
func (r *FeedbackRepository) ListUnprocessed(ctx context.Context, limit int) ([]*audit.Feedback, error) {
	var feedback []*audit.Feedback
	err := r.db.SelectContext(ctx, &feedback, `
		SELECT f.feedback_id, f.record_id, f.ai_label, f.ai_confidence, f.user_label,
			   f.feedback_type, f.certainty, f.submitted_at, FALSE AS processed
		FROM classification_feedback f
		LEFT JOIN feedback_processing p ON p.feedback_id = f.feedback_id
		WHERE p.feedback_id IS NULL
		ORDER BY f.submitted_at, f.feedback_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unprocessed feedback")
	}
	return feedback, nil
}

// CountUnprocessed returns the number of feedback rows without a processing record
func (r *FeedbackRepository) CountUnprocessed(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM classification_feedback f
		LEFT JOIN feedback_processing p ON p.feedback_id = f.feedback_id
		WHERE p.feedback_id IS NULL`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count unprocessed feedback")
	}
	return count, nil
}

// MarkProcessed records the model that consumed the feedback. Already processed ids are left alone.
func (r *FeedbackRepository) MarkProcessed(ctx context.Context, ids []uuid.UUID, modelID uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feedback_processing (feedback_id, model_id, processed_at)
		SELECT id, $2, $3 FROM unnest($1::uuid[]) AS id
		ON CONFLICT (feedback_id) DO NOTHING`, pq.Array(strIDs), modelID, at)
	if err != nil {
		return errors.Wrap(err, "failed to mark feedback processed")
	}
	return nil
}
