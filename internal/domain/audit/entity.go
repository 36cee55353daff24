package audit

import (
	"math"
	"time"

	"github.com/google/uuid"

	"pacelab/internal/domain/classification"
	"pacelab/pkg/errors"
)

// Source identifies who produced a label change
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
	SourceUser     Source = "user"
)

// Valid checks if source is known
func (s Source) Valid() bool {
	switch s {
	case SourceModel, SourceFallback, SourceUser:
		return true
	}
	return false
}

// SourceFor maps a classification method to its audit source
func SourceFor(m classification.Method) Source {
	switch m {
	case classification.MethodML:
		return SourceModel
	case classification.MethodManual:
		return SourceUser
	}
	return SourceFallback
}

// Entry is one immutable row of the decision log
type Entry struct {
	HistoryID     int64                 `db:"history_id" json:"history_id"`
	RecordID      int64                 `db:"record_id" json:"record_id"`
	PreviousLabel *classification.Label `db:"previous_label" json:"previous_label,omitempty"`
	NewLabel      classification.Label  `db:"new_label" json:"new_label"`
	Source        Source                `db:"source" json:"source"`
	Confidence    *float64              `db:"confidence" json:"confidence,omitempty"`
	Method        classification.Method `db:"method" json:"method"`
	ModelID       *uuid.UUID            `db:"model_id" json:"model_id,omitempty"`
	ChangedBy     string                `db:"changed_by" json:"changed_by"`
	ChangedAt     time.Time             `db:"changed_at" json:"changed_at"`
	Reason        string                `db:"reason" json:"reason,omitempty"`
	FeaturesUsed  map[string]float64    `db:"-" json:"features_used,omitempty"`
}

// Validate rejects rows that must never reach the log
func (e *Entry) Validate() error {
	if e == nil {
		return errors.ErrInvalidInput
	}
	if e.RecordID < 0 {
		return errors.NewValidationError("record_id", "must not be negative", e.RecordID)
	}
	if e.NewLabel == "" {
		return errors.NewValidationError("new_label", "is required", e.NewLabel)
	}
	if !e.Source.Valid() {
		return errors.NewValidationError("source", "unknown source", e.Source)
	}
	if !e.Method.Valid() {
		return errors.NewValidationError("method", "unknown method", e.Method)
	}
	if e.Confidence != nil {
		c := *e.Confidence
		if math.IsNaN(c) || c < 0 || c > 1 {
			return errors.NewValidationError("confidence", "must be within [0,1]", c)
		}
	}
	return nil
}

// FeedbackType classifies a user's reaction to a label
type FeedbackType string

const (
	FeedbackAccept    FeedbackType = "accept"
	FeedbackReject    FeedbackType = "reject"
	FeedbackCorrect   FeedbackType = "correct"
	FeedbackUncertain FeedbackType = "uncertain"
)

// Valid checks if feedback type is known
func (t FeedbackType) Valid() bool {
	switch t {
	case FeedbackAccept, FeedbackReject, FeedbackCorrect, FeedbackUncertain:
		return true
	}
	return false
}

// Feedback is a user's reaction to a model decision. Rows are never edited;
// Processed is derived from the separate processing log.
type Feedback struct {
	ID           uuid.UUID             `db:"feedback_id" json:"feedback_id"`
	RecordID     int64                 `db:"record_id" json:"record_id"`
	AILabel      classification.Label  `db:"ai_label" json:"ai_label"`
	AIConfidence float64               `db:"ai_confidence" json:"ai_confidence"`
	UserLabel    *classification.Label `db:"user_label" json:"user_label,omitempty"`
	Type         FeedbackType          `db:"feedback_type" json:"feedback_type"`
	Certainty    *int                  `db:"certainty" json:"certainty,omitempty"`
	SubmittedAt  time.Time             `db:"submitted_at" json:"submitted_at"`
	Processed    bool                  `db:"processed" json:"processed"`
}

// Validate checks the feedback before it is stored
func (f *Feedback) Validate() error {
	if f == nil {
		return errors.ErrInvalidInput
	}
	if f.AILabel == "" {
		return errors.NewValidationError("ai_label", "is required", f.AILabel)
	}
	if !f.Type.Valid() {
		return errors.NewValidationError("feedback_type", "unknown feedback type", f.Type)
	}
	if f.AIConfidence < 0 || f.AIConfidence > 1 || math.IsNaN(f.AIConfidence) {
		return errors.NewValidationError("ai_confidence", "must be within [0,1]", f.AIConfidence)
	}
	if f.Certainty != nil && (*f.Certainty < 1 || *f.Certainty > 5) {
		return errors.NewValidationError("certainty", "must be between 1 and 5", *f.Certainty)
	}
	if f.Type == FeedbackCorrect && (f.UserLabel == nil || *f.UserLabel == "") {
		return errors.NewValidationError("user_label", "is required for corrections", nil)
	}
	return nil
}

// OverridesLabel reports whether the feedback carries a replacement label
func (f *Feedback) OverridesLabel() bool {
	if f.UserLabel == nil || *f.UserLabel == "" {
		return false
	}
	return f.Type == FeedbackCorrect || f.Type == FeedbackReject
}

// StatsFilter restricts GetStats to a changed_at window. Nil bounds are open.
type StatsFilter struct {
	Since *time.Time
	Until *time.Time
}

// SourceStats aggregates entries per source
type SourceStats struct {
	Source        Source  `db:"source" json:"source"`
	Count         int     `db:"count" json:"count"`
	AvgConfidence float64 `db:"avg_confidence" json:"avg_confidence"`
}
