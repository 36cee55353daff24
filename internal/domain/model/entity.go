package model

import (
	"time"

	"github.com/google/uuid"

	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/classification"
)

// Status is the lifecycle state of a trained model
type Status string

const (
	StatusTraining   Status = "training"
	StatusActive     Status = "active"
	StatusArchived   Status = "archived"
	StatusDeprecated Status = "deprecated"
	StatusFailed     Status = "failed"
)

// Valid checks if status is known
func (s Status) Valid() bool {
	switch s {
	case StatusTraining, StatusActive, StatusArchived, StatusDeprecated, StatusFailed:
		return true
	}
	return false
}

// Activatable reports whether a model in this status may be promoted
func (s Status) Activatable() bool {
	switch s {
	case StatusTraining, StatusActive, StatusArchived:
		return true
	}
	return false
}

// String returns string representation
func (s Status) String() string {
	return string(s)
}

// ScalingParams holds per-feature standardisation parameters
type ScalingParams struct {
	Means   []float64 `json:"means"`
	StdDevs []float64 `json:"std_devs"`
}

// ConfidenceStats summarises the confidence distribution over the training set
type ConfidenceStats struct {
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// PerformanceMetrics are computed once at training time
type PerformanceMetrics struct {
	SeparationScore float64         `json:"separation_score"` // mean silhouette, [-1,1]
	Inertia         float64         `json:"inertia"`
	Iterations      int             `json:"iterations"`
	Confidence      ConfidenceStats `json:"confidence"`
}

// ClusterStats describes one cluster in original feature units
type ClusterStats struct {
	Cluster      int                  `json:"cluster"`
	Label        classification.Label `json:"label"`
	Count        int                  `json:"count"`
	MeanPace     float64              `json:"mean_pace"`
	MinPace      float64              `json:"min_pace"`
	MaxPace      float64              `json:"max_pace"`
	MeanDistance float64              `json:"mean_distance"`
	MinDistance  float64              `json:"min_distance"`
	MaxDistance  float64              `json:"max_distance"`
	MeanDuration float64              `json:"mean_duration_minutes"`
	MinDuration  float64              `json:"min_duration_minutes"`
	MaxDuration  float64              `json:"max_duration_minutes"`
	Centroid     []float64            `json:"centroid"` // original units
}

// TrainedModel is a registry entry together with the fitted parameters
type TrainedModel struct {
	ID             uuid.UUID                    `json:"model_id"`
	Version        int                          `json:"version"`
	TrainedAt      time.Time                    `json:"trained_at"`
	ClusterCount   int                          `json:"cluster_count"`
	Centroids      [][]float64                  `json:"centroids"` // standardised space
	Scaling        ScalingParams                `json:"scaling"`
	LabelMap       map[int]classification.Label `json:"label_map"`
	FeatureColumns []string                     `json:"feature_columns"`
	TrainingWindow activity.TrainingWindow      `json:"training_window"`
	Metrics        PerformanceMetrics           `json:"metrics"`
	ClusterStats   []ClusterStats               `json:"cluster_stats"`
	Status         Status                       `json:"status"`
	ParentID       *uuid.UUID                   `json:"parent_model_id,omitempty"`
	ActivatedAt    *time.Time                   `json:"activated_at,omitempty"`
	ArtifactKey    string                       `json:"artifact_key"`
}

// ArtifactKey returns the storage key for a model's artifact
func ArtifactKey(id uuid.UUID) string {
	return "models/" + id.String()
}

// Dimension returns the feature count the model expects
func (m *TrainedModel) Dimension() int {
	return len(m.FeatureColumns)
}

// IsActive reports whether the model is the production model
func (m *TrainedModel) IsActive() bool {
	return m.Status == StatusActive
}
