package classification

import (
	"time"

	"github.com/google/uuid"
)

// Label is an activity class name such as "run" or "walk"
type Label string

const (
	LabelRun   Label = "run"
	LabelWalk  Label = "walk"
	LabelMixed Label = "mixed"
)

// String returns string representation
func (l Label) String() string {
	return string(l)
}

// Method records how a label was decided
type Method string

const (
	MethodML           Method = "ml"
	MethodRuleFallback Method = "rule_fallback"
	MethodManual       Method = "manual"
)

// Valid checks if method is known
func (m Method) Valid() bool {
	switch m {
	case MethodML, MethodRuleFallback, MethodManual:
		return true
	}
	return false
}

// String returns string representation
func (m Method) String() string {
	return string(m)
}

// Fallback reasons
const (
	ReasonNoActiveModel   = "no_active_model"
	ReasonInvalidFeatures = "invalid_features"
)

// Result is the outcome of classifying one record.
// Confidence is a distance heuristic in [0,1], not a calibrated probability.
type Result struct {
	RecordID       int64      `json:"record_id"`
	Label          Label      `json:"label"`
	Confidence     float64    `json:"confidence"`
	Method         Method     `json:"method"`
	ModelID        *uuid.UUID `json:"model_id,omitempty"`
	ModelVersion   *int       `json:"model_version,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
	FallbackReason string     `json:"fallback_reason,omitempty"`
}

// Current is the latest label per record, a projection of the audit trail.
// ChangeCount counts label changes, not upserts, so re-classifying a record
// with the same label leaves it untouched and the upsert stays idempotent.
type Current struct {
	RecordID     int64      `db:"record_id" json:"record_id"`
	Label        Label      `db:"label" json:"label"`
	Confidence   float64    `db:"confidence" json:"confidence"`
	Method       Method     `db:"method" json:"method"`
	ModelID      *uuid.UUID `db:"model_id" json:"model_id,omitempty"`
	ModelVersion *int       `db:"model_version" json:"model_version,omitempty"`
	ClassifiedAt time.Time  `db:"classified_at" json:"classified_at"`
	ChangeCount  int        `db:"change_count" json:"change_count"`
}

// FromResult builds the projection row for a fresh result
func FromResult(r Result) *Current {
	return &Current{
		RecordID:     r.RecordID,
		Label:        r.Label,
		Confidence:   r.Confidence,
		Method:       r.Method,
		ModelID:      r.ModelID,
		ModelVersion: r.ModelVersion,
		ClassifiedAt: r.Timestamp,
	}
}
