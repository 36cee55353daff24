package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/classification"
	"pacelab/internal/domain/model"
	"pacelab/pkg/errors"
)

// Compile-time check
var _ model.Repository = (*ModelRepository)(nil)

// activationLockKey serialises activations across processes
const activationLockKey int64 = 0x7061636500000001

// ModelRepository implements model.Repository using PostgreSQL
type ModelRepository struct {
	db *sqlx.DB
}

// NewModelRepository creates a new model registry repository
func NewModelRepository(db *sqlx.DB) *ModelRepository {
	return &ModelRepository{db: db}
}

type modelRow struct {
	ID                  uuid.UUID    `db:"model_id"`
	Version             int          `db:"version"`
	TrainedAt           time.Time    `db:"trained_at"`
	ClusterCount        int          `db:"cluster_count"`
	FeatureColumns      string       `db:"feature_columns"`
	ScalingParams       string       `db:"scaling_params"`
	LabelMap            string       `db:"label_map"`
	TrainingWindowStart sql.NullTime `db:"training_window_start"`
	TrainingWindowEnd   sql.NullTime `db:"training_window_end"`
	TrainingCount       int          `db:"training_count"`
	SeparationScore     float64      `db:"separation_score"`
	Inertia             float64      `db:"inertia"`
	Metrics             string       `db:"metrics"`
	Status              model.Status `db:"status"`
	IsProduction        bool         `db:"is_production"`
	ParentModelID       *uuid.UUID   `db:"parent_model_id"`
	ActivatedAt         *time.Time   `db:"activated_at"`
	ArtifactKey         string       `db:"artifact_key"`
}

type clusterRow struct {
	ModelID      uuid.UUID       `db:"model_id"`
	ClusterIndex int             `db:"cluster_index"`
	Label        string          `db:"label"`
	SampleCount  int             `db:"sample_count"`
	Centroid     pgvector.Vector `db:"centroid"`
	Stats        string          `db:"stats"`
}

const modelColumns = `
	model_id, version, trained_at, cluster_count,
	feature_columns, scaling_params, label_map,
	training_window_start, training_window_end, training_count,
	separation_score, inertia, metrics,
	status, is_production, parent_model_id, activated_at, artifact_key`

// NextVersion allocates a version from the registry sequence
func (r *ModelRepository) NextVersion(ctx context.Context) (int, error) {
	var version int
	if err := r.db.GetContext(ctx, &version, `SELECT nextval('model_version_seq')`); err != nil {
		return 0, errors.Wrap(err, "failed to allocate model version")
	}
	return version, nil
}

// Create inserts the registry row and its per-cluster rows in one transaction
func (r *ModelRepository) Create(ctx context.Context, m *model.TrainedModel) error {
	row, err := toModelRow(m)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `INSERT INTO model_registry (` + modelColumns + `) VALUES (
		:model_id, :version, :trained_at, :cluster_count,
		:feature_columns, :scaling_params, :label_map,
		:training_window_start, :training_window_end, :training_count,
		:separation_score, :inertia, :metrics,
		:status, :is_production, :parent_model_id, :activated_at, :artifact_key
	)`
	if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(errors.ErrAlreadyExists, "model %s version %d", m.ID, m.Version)
		}
		return errors.Wrap(err, "failed to create model")
	}

	clusterQuery := `
		INSERT INTO model_clusters (model_id, cluster_index, label, sample_count, centroid, stats)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for i, centroid := range m.Centroids {
		stats := model.ClusterStats{Cluster: i, Label: m.LabelMap[i]}
		if i < len(m.ClusterStats) {
			stats = m.ClusterStats[i]
		}
		statsJSON, err := json.Marshal(stats)
		if err != nil {
			return errors.Wrap(err, "failed to encode cluster stats")
		}
		if _, err := tx.ExecContext(ctx, clusterQuery,
			m.ID, i, string(m.LabelMap[i]), stats.Count, toVector(centroid), string(statsJSON),
		); err != nil {
			return errors.Wrapf(err, "failed to create cluster %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit model")
	}
	return nil
}

// GetByID retrieves a model with its clusters
func (r *ModelRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TrainedModel, error) {
	var row modelRow
	err := r.db.GetContext(ctx, &row, `SELECT `+modelColumns+` FROM model_registry WHERE model_id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "model not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get model")
	}

	models, err := r.hydrate(ctx, []modelRow{row})
	if err != nil {
		return nil, err
	}
	return models[0], nil
}

// GetActive returns the production model, or nil when there is none
func (r *ModelRepository) GetActive(ctx context.Context) (*model.TrainedModel, error) {
	var row modelRow
	err := r.db.GetContext(ctx, &row, `SELECT `+modelColumns+` FROM model_registry WHERE is_production`)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get active model")
	}

	models, err := r.hydrate(ctx, []modelRow{row})
	if err != nil {
		return nil, err
	}
	return models[0], nil
}

// Activate promotes id and archives every other production model.
// The advisory lock serialises concurrent activations; the partial unique
// index on is_production catches anything that slips past it.
func (r *ModelRepository) Activate(ctx context.Context, id uuid.UUID, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, activationLockKey); err != nil {
		return errors.Wrap(err, "failed to acquire activation lock")
	}

	var status model.Status
	err = tx.GetContext(ctx, &status, `SELECT status FROM model_registry WHERE model_id = $1 FOR UPDATE`, id)
	if err == sql.ErrNoRows {
		return errors.Wrap(errors.ErrNotFound, "model not found")
	}
	if err != nil {
		return errors.Wrap(err, "failed to lock model")
	}
	if !status.Activatable() {
		return errors.NewValidationError("status", "model cannot be activated", status)
	}
	if status == model.StatusActive {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE model_registry
		SET status = 'archived', is_production = FALSE
		WHERE is_production AND model_id <> $1`, id); err != nil {
		return mapActivationError(err, "failed to archive previous model")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE model_registry
		SET status = 'active', is_production = TRUE, activated_at = $2
		WHERE model_id = $1`, id, at); err != nil {
		return mapActivationError(err, "failed to promote model")
	}

	if err := tx.Commit(); err != nil {
		return mapActivationError(err, "failed to commit activation")
	}
	return nil
}

// UpdateStatus changes status for non-production transitions
func (r *ModelRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	if !status.Valid() || status == model.StatusActive {
		return errors.NewValidationError("status", "use Activate to promote a model", status)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE model_registry
		SET status = $2, is_production = FALSE
		WHERE model_id = $1`, id, status)
	if err != nil {
		return errors.Wrap(err, "failed to update model status")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrap(errors.ErrNotFound, "model not found")
	}
	return nil
}

// ListByStatus returns models in status, newest version first
func (r *ModelRepository) ListByStatus(ctx context.Context, status model.Status) ([]*model.TrainedModel, error) {
	var rows []modelRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+modelColumns+` FROM model_registry WHERE status = $1 ORDER BY version DESC`, status)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list models")
	}
	if len(rows) == 0 {
		return []*model.TrainedModel{}, nil
	}
	return r.hydrate(ctx, rows)
}

// hydrate decodes rows and attaches their clusters with one query
func (r *ModelRepository) hydrate(ctx context.Context, rows []modelRow) ([]*model.TrainedModel, error) {
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID.String()
	}

	var clusters []clusterRow
	err := r.db.SelectContext(ctx, &clusters, `
		SELECT model_id, cluster_index, label, sample_count, centroid, stats
		FROM model_clusters
		WHERE model_id = ANY($1::uuid[])
		ORDER BY model_id, cluster_index`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load model clusters")
	}

	byModel := make(map[uuid.UUID][]clusterRow, len(rows))
	for _, c := range clusters {
		byModel[c.ModelID] = append(byModel[c.ModelID], c)
	}

	models := make([]*model.TrainedModel, len(rows))
	for i, row := range rows {
		m, err := row.toModel(byModel[row.ID])
		if err != nil {
			return nil, err
		}
		models[i] = m
	}
	return models, nil
}

func toModelRow(m *model.TrainedModel) (*modelRow, error) {
	columns, err := json.Marshal(m.FeatureColumns)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode feature columns")
	}
	scaling, err := json.Marshal(m.Scaling)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode scaling params")
	}
	labels, err := json.Marshal(m.LabelMap)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode label map")
	}
	metrics, err := json.Marshal(m.Metrics)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode metrics")
	}

	row := &modelRow{
		ID:              m.ID,
		Version:         m.Version,
		TrainedAt:       m.TrainedAt,
		ClusterCount:    m.ClusterCount,
		FeatureColumns:  string(columns),
		ScalingParams:   string(scaling),
		LabelMap:        string(labels),
		TrainingCount:   m.TrainingWindow.Count,
		SeparationScore: m.Metrics.SeparationScore,
		Inertia:         m.Metrics.Inertia,
		Metrics:         string(metrics),
		Status:          m.Status,
		IsProduction:    m.Status == model.StatusActive,
		ParentModelID:   m.ParentID,
		ActivatedAt:     m.ActivatedAt,
		ArtifactKey:     m.ArtifactKey,
	}
	if !m.TrainingWindow.Start.IsZero() {
		row.TrainingWindowStart = sql.NullTime{Time: m.TrainingWindow.Start, Valid: true}
	}
	if !m.TrainingWindow.End.IsZero() {
		row.TrainingWindowEnd = sql.NullTime{Time: m.TrainingWindow.End, Valid: true}
	}
	return row, nil
}

// toModel rebuilds the entity. Centroids come back from pgvector at float32
// precision; LoadModel replaces them with the exact artifact values.
func (row modelRow) toModel(clusters []clusterRow) (*model.TrainedModel, error) {
	m := &model.TrainedModel{
		ID:           row.ID,
		Version:      row.Version,
		TrainedAt:    row.TrainedAt.UTC(),
		ClusterCount: row.ClusterCount,
		TrainingWindow: activity.TrainingWindow{
			Count: row.TrainingCount,
		},
		Status:      row.Status,
		ParentID:    row.ParentModelID,
		ActivatedAt: row.ActivatedAt,
		ArtifactKey: row.ArtifactKey,
	}
	if row.TrainingWindowStart.Valid {
		m.TrainingWindow.Start = row.TrainingWindowStart.Time.UTC()
	}
	if row.TrainingWindowEnd.Valid {
		m.TrainingWindow.End = row.TrainingWindowEnd.Time.UTC()
	}

	if err := json.Unmarshal([]byte(row.FeatureColumns), &m.FeatureColumns); err != nil {
		return nil, errors.Wrap(err, "failed to decode feature columns")
	}
	if err := json.Unmarshal([]byte(row.ScalingParams), &m.Scaling); err != nil {
		return nil, errors.Wrap(err, "failed to decode scaling params")
	}
	if err := json.Unmarshal([]byte(row.LabelMap), &m.LabelMap); err != nil {
		return nil, errors.Wrap(err, "failed to decode label map")
	}
	if err := json.Unmarshal([]byte(row.Metrics), &m.Metrics); err != nil {
		return nil, errors.Wrap(err, "failed to decode metrics")
	}

	m.Centroids = make([][]float64, len(clusters))
	m.ClusterStats = make([]model.ClusterStats, len(clusters))
	for i, c := range clusters {
		m.Centroids[i] = fromVector(c.Centroid)
		if err := json.Unmarshal([]byte(c.Stats), &m.ClusterStats[i]); err != nil {
			return nil, errors.Wrapf(err, "failed to decode cluster %d stats", c.ClusterIndex)
		}
		m.ClusterStats[i].Label = classification.Label(c.Label)
	}
	return m, nil
}

func toVector(values []float64) pgvector.Vector {
	f := make([]float32, len(values))
	for i, v := range values {
		f[i] = float32(v)
	}
	return pgvector.NewVector(f)
}

func fromVector(v pgvector.Vector) []float64 {
	s := v.Slice()
	out := make([]float64, len(s))
	for i, f := range s {
		out[i] = float64(f)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func mapActivationError(err error, message string) error {
	if isUniqueViolation(err) {
		return errors.WithKind(errors.ErrActivationConflict, err, message)
	}
	return errors.Wrap(err, message)
}
