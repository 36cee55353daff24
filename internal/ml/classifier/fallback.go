package classifier

import (
	"time"

	"pacelab/internal/domain/classification"
	"pacelab/pkg/errors"
)

// FallbackRule labels records by era when the model cannot answer.
// Records before Cutoff get LabelBefore, the rest LabelAfter, and records
// without a timestamp get DefaultLabel. Confidence is fixed.
type FallbackRule struct {
	Cutoff       time.Time
	LabelBefore  classification.Label
	LabelAfter   classification.Label
	DefaultLabel classification.Label
	Confidence   float64
}

// DefaultFallbackRule returns the stock era rule
func DefaultFallbackRule() FallbackRule {
	return FallbackRule{
		Cutoff:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LabelBefore:  classification.LabelWalk,
		LabelAfter:   classification.LabelRun,
		DefaultLabel: classification.LabelMixed,
		Confidence:   0.4,
	}
}

// Validate checks labels and keeps the fallback confidence below any real model signal
func (r FallbackRule) Validate() error {
	if r.LabelBefore == "" || r.LabelAfter == "" || r.DefaultLabel == "" {
		return errors.NewValidationError("fallback_labels", "all fallback labels are required", nil)
	}
	if r.Confidence < 0 || r.Confidence >= 0.5 {
		return errors.NewValidationError("fallback_confidence", "must be in [0, 0.5)", r.Confidence)
	}
	return nil
}

// Label applies the rule to a record timestamp
func (r FallbackRule) Label(ts *time.Time) classification.Label {
	switch {
	case ts == nil:
		return r.DefaultLabel
	case ts.Before(r.Cutoff):
		return r.LabelBefore
	default:
		return r.LabelAfter
	}
}
