package cluster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/classification"
	"pacelab/pkg/errors"
)

func vectorsFromPaces(paces ...float64) []activity.FeatureVector {
	out := make([]activity.FeatureVector, 0, len(paces))
	for i, p := range paces {
		out = append(out, activity.Extract(activity.Record{
			ID:              int64(i + 1),
			Pace:            p,
			Distance:        5,
			DurationSeconds: 2400,
		}))
	}
	return out
}

func twoClusterConfig(t *testing.T) Config {
	t.Helper()
	policy, err := DefaultPolicy(2)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.K = 2
	cfg.Policy = policy
	return cfg
}

func TestTrainer_FitTwoClusters(t *testing.T) {
	trainer, err := NewTrainer(twoClusterConfig(t))
	require.NoError(t, err)

	vectors := vectorsFromPaces(8.0, 8.2, 7.9, 24.0, 23.5)
	m, err := trainer.Fit(context.Background(), vectors, activity.TrainingWindow{Count: len(vectors)})
	require.NoError(t, err)

	assert.Equal(t, 2, m.ClusterCount)
	assert.Equal(t, classification.LabelRun, m.LabelMap[0])
	assert.Equal(t, classification.LabelWalk, m.LabelMap[1])

	require.Len(t, m.ClusterStats, 2)
	assert.Equal(t, 3, m.ClusterStats[0].Count)
	assert.Equal(t, 2, m.ClusterStats[1].Count)
	assert.InDelta(t, (8.0+8.2+7.9)/3, m.ClusterStats[0].MeanPace, 1e-9)
	assert.InDelta(t, 7.9, m.ClusterStats[0].MinPace, 1e-9)
	assert.InDelta(t, 24.0, m.ClusterStats[1].MaxPace, 1e-9)
	assert.InDelta(t, 23.75, m.ClusterStats[1].Centroid[0], 1e-9)

	// Distance and duration are constant so they scale to zero
	assert.Equal(t, 1.0, m.Scaling.StdDevs[1])
	assert.Equal(t, 1.0, m.Scaling.StdDevs[2])

	assert.Greater(t, m.Metrics.SeparationScore, 0.9)
	assert.GreaterOrEqual(t, m.Metrics.Confidence.Min, 0.0)
	assert.LessOrEqual(t, m.Metrics.Confidence.Max, 1.0)
}

func TestTrainer_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	trainer, err := NewTrainer(cfg)
	require.NoError(t, err)

	vectors := vectorsFromPaces(5.1, 5.3, 5.0, 9.8, 10.2, 10.0, 17.5, 18.0, 19.1, 5.2, 9.9, 18.4)

	first, err := trainer.Fit(context.Background(), vectors, activity.TrainingWindow{})
	require.NoError(t, err)
	second, err := trainer.Fit(context.Background(), vectors, activity.TrainingWindow{})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Centroids, second.Centroids)
	assert.Equal(t, first.LabelMap, second.LabelMap)
	assert.Equal(t, first.Metrics, second.Metrics)
	assert.Equal(t, first.ClusterStats, second.ClusterStats)
}

func TestTrainer_LabelMapTotalAndCollisionFree(t *testing.T) {
	trainer, err := NewTrainer(DefaultConfig())
	require.NoError(t, err)

	vectors := vectorsFromPaces(5.1, 5.3, 5.0, 9.8, 10.2, 10.0, 17.5, 18.0, 19.1)
	m, err := trainer.Fit(context.Background(), vectors, activity.TrainingWindow{})
	require.NoError(t, err)

	seen := make(map[classification.Label]bool)
	for c := 0; c < m.ClusterCount; c++ {
		label, ok := m.LabelMap[c]
		require.True(t, ok, "cluster %d has no label", c)
		assert.False(t, seen[label], "label %s used twice", label)
		seen[label] = true
	}
	assert.Len(t, m.LabelMap, m.ClusterCount)

	// Ranked by pace: fastest cluster first
	assert.Equal(t, classification.LabelRun, m.LabelMap[0])
	assert.Equal(t, classification.LabelMixed, m.LabelMap[1])
	assert.Equal(t, classification.LabelWalk, m.LabelMap[2])
	assert.Less(t, m.ClusterStats[0].MeanPace, m.ClusterStats[1].MeanPace)
	assert.Less(t, m.ClusterStats[1].MeanPace, m.ClusterStats[2].MeanPace)
}

func TestTrainer_InsufficientData(t *testing.T) {
	trainer, err := NewTrainer(twoClusterConfig(t))
	require.NoError(t, err)

	_, err = trainer.Fit(context.Background(), vectorsFromPaces(8, 9, 10, 11), activity.TrainingWindow{})
	assert.ErrorIs(t, err, errors.ErrInsufficientData)

	_, err = trainer.Fit(context.Background(), vectorsFromPaces(8, 8, 8, 8, 8, 8), activity.TrainingWindow{})
	assert.ErrorIs(t, err, errors.ErrInsufficientData)

	// Invalid vectors do not count
	_, err = trainer.Fit(context.Background(), vectorsFromPaces(8, 9, 24, 25, 0, -1, 70), activity.TrainingWindow{})
	assert.ErrorIs(t, err, errors.ErrInsufficientData)
}

func TestTrainer_Cancelled(t *testing.T) {
	trainer, err := NewTrainer(twoClusterConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = trainer.Fit(ctx, vectorsFromPaces(8.0, 8.2, 7.9, 24.0, 23.5), activity.TrainingWindow{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewTrainer_PolicyMustMatchK(t *testing.T) {
	cfg := DefaultConfig()
	cfg.K = 4

	_, err := NewTrainer(cfg)
	assert.ErrorIs(t, err, errors.ErrInvalidPolicy)
}

func TestLabelPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		policy LabelPolicy
		k      int
		ok     bool
	}{
		{"default k=3", LabelPolicy{SortFeature: "pace", OrderedLabels: []classification.Label{"run", "mixed", "walk"}}, 3, true},
		{"too few labels", LabelPolicy{SortFeature: "pace", OrderedLabels: []classification.Label{"run"}}, 2, false},
		{"duplicate", LabelPolicy{SortFeature: "pace", OrderedLabels: []classification.Label{"run", "run"}}, 2, false},
		{"empty label", LabelPolicy{SortFeature: "pace", OrderedLabels: []classification.Label{"run", ""}}, 2, false},
		{"unknown feature", LabelPolicy{SortFeature: "cadence", OrderedLabels: []classification.Label{"run", "walk"}}, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate(tt.k, activity.DefaultColumns)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errors.ErrInvalidPolicy)
			}
		})
	}
}

func TestDefaultPolicy_OnlyTwoAndThree(t *testing.T) {
	_, err := DefaultPolicy(1)
	assert.ErrorIs(t, err, errors.ErrInvalidPolicy)
	_, err = DefaultPolicy(5)
	assert.ErrorIs(t, err, errors.ErrInvalidPolicy)
}

func TestResolvePolicy_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.yaml")
	content := "sort_feature: pace\nlabels: [sprint, jog, stroll, hike]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p, err := ResolvePolicy(4, nil, path)
	require.NoError(t, err)
	assert.Equal(t, []classification.Label{"sprint", "jog", "stroll", "hike"}, p.OrderedLabels)

	_, err = ResolvePolicy(3, nil, path)
	assert.ErrorIs(t, err, errors.ErrInvalidPolicy)
}

func TestResolvePolicy_ExplicitLabels(t *testing.T) {
	p, err := ResolvePolicy(1, []string{"activity"}, "")
	require.NoError(t, err)
	assert.Equal(t, activity.ColumnPace, p.SortFeature)
	assert.Equal(t, []classification.Label{"activity"}, p.OrderedLabels)
}
