package cluster

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/classification"
	"pacelab/internal/domain/model"
	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

// Config controls a training run
type Config struct {
	K             int
	Seed          int64
	Restarts      int
	MaxIterations int
	Tolerance     float64
	MinSamples    int
	Columns       []string
	Policy        LabelPolicy
}

// DefaultConfig returns the standard three-cluster setup
func DefaultConfig() Config {
	policy, _ := DefaultPolicy(3)
	return Config{
		K:             3,
		Seed:          42,
		Restarts:      10,
		MaxIterations: 300,
		Tolerance:     1e-4,
		MinSamples:    5,
		Columns:       activity.DefaultColumns,
		Policy:        policy,
	}
}

// Validate checks the config, including the label policy against K
func (c Config) Validate() error {
	if c.K < 1 {
		return errors.NewValidationError("k", "must be at least 1", c.K)
	}
	if c.Restarts < 1 {
		return errors.NewValidationError("restarts", "must be at least 1", c.Restarts)
	}
	if c.MaxIterations < 1 {
		return errors.NewValidationError("max_iterations", "must be at least 1", c.MaxIterations)
	}
	if len(c.Columns) == 0 {
		return errors.NewValidationError("columns", "at least one feature column is required", nil)
	}
	return c.Policy.Validate(c.K, c.Columns)
}

// Trainer fits k-means models over historical feature vectors
type Trainer struct {
	cfg Config
	now func() time.Time
	log *logger.Logger
}

// NewTrainer creates a trainer. The config is validated up front.
func NewTrainer(cfg Config) (*Trainer, error) {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 1e-4
	}
	if cfg.MinSamples < cfg.K {
		cfg.MinSamples = cfg.K
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{
		cfg: cfg,
		now: time.Now,
		log: logger.Get().With("component", "cluster_trainer"),
	}, nil
}

// Config returns the trainer configuration
func (t *Trainer) Config() Config {
	return t.cfg
}

// Fit trains a model on valid vectors. The result has status=training and no version yet.
func (t *Trainer) Fit(ctx context.Context, vectors []activity.FeatureVector, window activity.TrainingWindow) (*model.TrainedModel, error) {
	raw := make([][]float64, 0, len(vectors))
	for _, fv := range vectors {
		if !fv.Valid {
			continue
		}
		values, ok := fv.Values(t.cfg.Columns)
		if !ok {
			return nil, errors.Wrap(errors.ErrInvalidInput, "feature columns not available on vector")
		}
		raw = append(raw, values)
	}

	if len(raw) < t.cfg.MinSamples {
		return nil, errors.Wrapf(errors.ErrInsufficientData, "%d valid records, need at least %d", len(raw), t.cfg.MinSamples)
	}
	if distinct := countDistinct(raw); distinct < t.cfg.K {
		return nil, errors.Wrapf(errors.ErrInsufficientData, "%d distinct records, need at least %d", distinct, t.cfg.K)
	}

	scaler := FitScaler(raw)
	scaled := scaler.TransformAll(raw)

	start := time.Now()
	best, err := t.bestOfRestarts(ctx, scaled)
	if err != nil {
		return nil, err
	}

	order := t.rankClusters(best.Centroids, scaler)
	centroids, assign := reorder(best, order)

	labels := make(map[int]classification.Label, t.cfg.K)
	for rank := range centroids {
		labels[rank] = t.cfg.Policy.OrderedLabels[rank]
	}

	m := &model.TrainedModel{
		ID:             uuid.New(),
		TrainedAt:      t.now().UTC(),
		ClusterCount:   t.cfg.K,
		Centroids:      centroids,
		Scaling:        model.ScalingParams{Means: scaler.Means, StdDevs: scaler.StdDevs},
		LabelMap:       labels,
		FeatureColumns: append([]string(nil), t.cfg.Columns...),
		TrainingWindow: window,
		Metrics: model.PerformanceMetrics{
			SeparationScore: Silhouette(scaled, assign, t.cfg.K),
			Inertia:         best.Inertia,
			Iterations:      best.Iterations,
			Confidence:      confidenceStats(scaled, centroids),
		},
		Status: model.StatusTraining,
	}
	m.ClusterStats = t.clusterStats(raw, assign, centroids, scaler, labels)

	t.log.Infow("Model fitted",
		"samples", len(raw),
		"clusters", t.cfg.K,
		"restart", best.Restart,
		"inertia", best.Inertia,
		"separation", m.Metrics.SeparationScore,
		"duration", time.Since(start),
	)
	return m, nil
}

// bestOfRestarts runs every restart concurrently and keeps the lowest inertia.
// Ties go to the lowest restart index, so the result does not depend on scheduling.
func (t *Trainer) bestOfRestarts(ctx context.Context, data [][]float64) (*Fit, error) {
	fits := make([]*Fit, t.cfg.Restarts)
	params := kmeansParams{k: t.cfg.K, maxIterations: t.cfg.MaxIterations, tolerance: t.cfg.Tolerance}

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < t.cfg.Restarts; i++ {
		g.Go(func() error {
			fit, err := runKMeans(gCtx, data, params, newRand(t.cfg.Seed, i))
			if err != nil {
				return err
			}
			fit.Restart = i
			fits[i] = fit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "k-means restarts")
	}

	best := fits[0]
	for _, f := range fits[1:] {
		if f.Inertia < best.Inertia {
			best = f
		}
	}
	return best, nil
}

// rankClusters returns cluster indices sorted ascending by the policy's sort feature
func (t *Trainer) rankClusters(centroids [][]float64, scaler Scaler) []int {
	idx := t.cfg.Policy.sortIndex(t.cfg.Columns)
	order := make([]int, len(centroids))
	keys := make([]float64, len(centroids))
	for i, c := range centroids {
		order[i] = i
		keys[i] = scaler.Inverse(c)[idx]
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keys[order[a]] < keys[order[b]]
	})
	return order
}

// reorder renumbers clusters so that cluster i is the i-th ranked one
func reorder(fit *Fit, order []int) ([][]float64, []int) {
	rankOf := make([]int, len(order))
	centroids := make([][]float64, len(order))
	for rank, old := range order {
		rankOf[old] = rank
		centroids[rank] = fit.Centroids[old]
	}
	assign := make([]int, len(fit.Assign))
	for i, c := range fit.Assign {
		assign[i] = rankOf[c]
	}
	return centroids, assign
}

func (t *Trainer) clusterStats(raw [][]float64, assign []int, centroids [][]float64, scaler Scaler, labels map[int]classification.Label) []model.ClusterStats {
	stats := make([]model.ClusterStats, len(centroids))
	col := func(name string) int {
		for i, c := range t.cfg.Columns {
			if c == name {
				return i
			}
		}
		return -1
	}
	pace, dist, dur := col(activity.ColumnPace), col(activity.ColumnDistance), col(activity.ColumnDurationMinutes)

	for c := range stats {
		stats[c] = model.ClusterStats{
			Cluster:  c,
			Label:    labels[c],
			Centroid: scaler.Inverse(centroids[c]),
		}
	}

	paces := make([]summary, len(centroids))
	dists := make([]summary, len(centroids))
	durs := make([]summary, len(centroids))
	for i, row := range raw {
		c := assign[i]
		stats[c].Count++
		if pace >= 0 {
			paces[c].add(row[pace])
		}
		if dist >= 0 {
			dists[c].add(row[dist])
		}
		if dur >= 0 {
			durs[c].add(row[dur])
		}
	}

	for c := range stats {
		stats[c].MeanPace, stats[c].MinPace, stats[c].MaxPace = paces[c].values()
		stats[c].MeanDistance, stats[c].MinDistance, stats[c].MaxDistance = dists[c].values()
		stats[c].MeanDuration, stats[c].MinDuration, stats[c].MaxDuration = durs[c].values()
	}
	return stats
}

type summary struct {
	n           int
	sum, lo, hi float64
}

func (s *summary) add(v float64) {
	if s.n == 0 || v < s.lo {
		s.lo = v
	}
	if s.n == 0 || v > s.hi {
		s.hi = v
	}
	s.sum += v
	s.n++
}

// values returns mean, min and max
func (s summary) values() (float64, float64, float64) {
	if s.n == 0 {
		return 0, 0, 0
	}
	return s.sum / float64(s.n), s.lo, s.hi
}

func confidenceStats(data, centroids [][]float64) model.ConfidenceStats {
	if len(data) == 0 {
		return model.ConfidenceStats{}
	}
	values := make([]float64, len(data))
	stats := model.ConfidenceStats{Min: math.Inf(1), Max: math.Inf(-1)}
	for i, x := range data {
		_, distances := Nearest(x, centroids)
		values[i] = Confidence(distances)
		stats.Mean += values[i]
		stats.Min = math.Min(stats.Min, values[i])
		stats.Max = math.Max(stats.Max, values[i])
	}
	stats.Mean /= float64(len(values))
	for _, v := range values {
		d := v - stats.Mean
		stats.StdDev += d * d
	}
	stats.StdDev = math.Sqrt(stats.StdDev / float64(len(values)))
	return stats
}

func countDistinct(data [][]float64) int {
	seen := make(map[string]struct{}, len(data))
	for _, row := range data {
		seen[fmt.Sprint(row)] = struct{}{}
	}
	return len(seen)
}
