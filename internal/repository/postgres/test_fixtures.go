package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/classification"
	"pacelab/internal/domain/model"
)

// TestFixtures provides factory methods for creating test data
type TestFixtures struct {
	db *sqlx.DB
	t  *testing.T
}

// NewTestFixtures creates a new test fixtures factory
func NewTestFixtures(t *testing.T, db *sqlx.DB) *TestFixtures {
	t.Helper()
	return &TestFixtures{db: db, t: t}
}

// NewModel builds an unsaved two-cluster model
func (f *TestFixtures) NewModel(opts ...func(*model.TrainedModel)) *model.TrainedModel {
	f.t.Helper()

	id := uuid.New()
	m := &model.TrainedModel{
		ID:             id,
		TrainedAt:      time.Now().UTC().Truncate(time.Microsecond),
		ClusterCount:   2,
		FeatureColumns: activity.DefaultColumns,
		Scaling: model.ScalingParams{
			Means:   []float64{10, 5, 40},
			StdDevs: []float64{2, 1, 10},
		},
		Centroids: [][]float64{{-1, 0, 0}, {1, 0, 0}},
		LabelMap:  map[int]classification.Label{0: "run", 1: "walk"},
		ClusterStats: []model.ClusterStats{
			{Cluster: 0, Label: "run", Count: 3, MeanPace: 8, Centroid: []float64{8, 5, 40}},
			{Cluster: 1, Label: "walk", Count: 2, MeanPace: 12, Centroid: []float64{12, 5, 40}},
		},
		TrainingWindow: activity.TrainingWindow{
			Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			Count: 5,
		},
		Metrics: model.PerformanceMetrics{SeparationScore: 0.9, Inertia: 1.2, Iterations: 3},
		Status:  model.StatusTraining,
	}
	m.ArtifactKey = model.ArtifactKey(id)

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateModel inserts a model row with a fresh version
func (f *TestFixtures) CreateModel(opts ...func(*model.TrainedModel)) *model.TrainedModel {
	f.t.Helper()

	repo := NewModelRepository(f.db)
	m := f.NewModel(opts...)

	version, err := repo.NextVersion(context.Background())
	require.NoError(f.t, err)
	m.Version = version

	require.NoError(f.t, repo.Create(context.Background(), m))
	return m
}
