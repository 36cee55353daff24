package modelops

import (
	"time"

	"github.com/google/uuid"

	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/classification"
	"pacelab/internal/domain/model"
	"pacelab/pkg/errors"
)

// Training outcome kinds that are not derived from an error
const (
	KindTrained = "trained"
	KindNoop    = "noop"
)

// TrainingOutcome is the structured result of a training run.
// Kind is machine-readable; Message is for people.
type TrainingOutcome struct {
	Success   bool                `json:"success"`
	Kind      string              `json:"kind"`
	Message   string              `json:"message"`
	Model     *model.TrainedModel `json:"model,omitempty"`
	Activated bool                `json:"activated"`
	Duration  time.Duration       `json:"duration"`
}

func failedOutcome(err error, m *model.TrainedModel, started time.Time) *TrainingOutcome {
	kind := errors.Kind(err)
	if kind == "" {
		kind = "error"
	}
	return &TrainingOutcome{
		Kind:     kind,
		Message:  err.Error(),
		Model:    m,
		Duration: time.Since(started),
	}
}

// BatchResult is what Classify returns: one result per input record, in order,
// plus flags for side effects that did not complete.
type BatchResult struct {
	Results           []classification.Result `json:"results"`
	AuditStored       int                     `json:"audit_stored"`
	AuditFailures     int                     `json:"audit_failures"`
	AuditWarning      bool                    `json:"audit_warning"`
	ProjectionWarning bool                    `json:"projection_warning"`
	Warnings          []string                `json:"warnings,omitempty"`
}

func (b *BatchResult) warn(msg string) {
	b.Warnings = append(b.Warnings, msg)
}

// ModelSummary is the part of a model shown by Status
type ModelSummary struct {
	ID              uuid.UUID                    `json:"model_id"`
	Version         int                          `json:"version"`
	TrainedAt       time.Time                    `json:"trained_at"`
	ActivatedAt     *time.Time                   `json:"activated_at,omitempty"`
	ParentID        *uuid.UUID                   `json:"parent_model_id,omitempty"`
	ClusterCount    int                          `json:"cluster_count"`
	LabelMap        map[int]classification.Label `json:"label_map"`
	FeatureColumns  []string                     `json:"feature_columns"`
	TrainingWindow  activity.TrainingWindow      `json:"training_window"`
	SeparationScore float64                      `json:"separation_score"`
	Inertia         float64                      `json:"inertia"`
	Confidence      model.ConfidenceStats        `json:"confidence"`
	ClusterStats    []model.ClusterStats         `json:"cluster_stats"`
}

// Summarize builds the status view of m
func Summarize(m *model.TrainedModel) *ModelSummary {
	return &ModelSummary{
		ID:              m.ID,
		Version:         m.Version,
		TrainedAt:       m.TrainedAt,
		ActivatedAt:     m.ActivatedAt,
		ParentID:        m.ParentID,
		ClusterCount:    m.ClusterCount,
		LabelMap:        m.LabelMap,
		FeatureColumns:  m.FeatureColumns,
		TrainingWindow:  m.TrainingWindow,
		SeparationScore: m.Metrics.SeparationScore,
		Inertia:         m.Metrics.Inertia,
		Confidence:      m.Metrics.Confidence,
		ClusterStats:    m.ClusterStats,
	}
}

// Status reports the production model and whether its two stores agree
type Status struct {
	Active    bool                   `json:"active"`
	Model     *ModelSummary          `json:"model,omitempty"`
	Integrity *model.IntegrityReport `json:"integrity,omitempty"`
	// Loaded is false when this process still serves a different model than the registry's active one
	Loaded bool `json:"loaded"`
}
