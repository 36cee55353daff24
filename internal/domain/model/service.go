package model

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

// IntegrityReport compares a registry row with its stored artifact
type IntegrityReport struct {
	ModelID         uuid.UUID `json:"model_id"`
	ArtifactKey     string    `json:"artifact_key"`
	ArtifactPresent bool      `json:"artifact_present"`
	IDsMatch        bool      `json:"ids_match"`
	Detail          string    `json:"detail,omitempty"`
}

// OK reports whether registry and artifact agree
func (r IntegrityReport) OK() bool {
	return r.ArtifactPresent && r.IDsMatch
}

// Registry persists models and controls which one is in production
type Registry struct {
	repo      Repository
	artifacts ArtifactStore
	now       func() time.Time
	log       *logger.Logger
}

// NewRegistry creates a model registry
func NewRegistry(repo Repository, artifacts ArtifactStore) *Registry {
	return &Registry{
		repo:      repo,
		artifacts: artifacts,
		now:       time.Now,
		log:       logger.Get().With("component", "model_registry"),
	}
}

// Persist stores the artifact and then registers the model with status=training.
// If registration fails the artifact is removed so no row ever points at a missing artifact.
func (r *Registry) Persist(ctx context.Context, m *TrainedModel) error {
	if m == nil || m.ID == uuid.Nil {
		return errors.ErrInvalidInput
	}

	if m.Version == 0 {
		version, err := r.repo.NextVersion(ctx)
		if err != nil {
			return errors.WithKind(errors.ErrPersistence, err, "failed to allocate model version")
		}
		m.Version = version
	}
	m.ArtifactKey = ArtifactKey(m.ID)

	data, err := NewArtifact(m).Encode()
	if err != nil {
		return errors.WithKind(errors.ErrPersistence, err, "failed to serialise model")
	}
	if err := r.artifacts.Put(ctx, m.ArtifactKey, data); err != nil {
		return errors.WithKind(errors.ErrPersistence, err, "failed to write artifact")
	}

	if err := r.Register(ctx, m); err != nil {
		if delErr := r.artifacts.Delete(ctx, m.ArtifactKey); delErr != nil {
			r.log.Warnw("Failed to remove orphaned artifact",
				"model_id", m.ID,
				"artifact_key", m.ArtifactKey,
				"error", delErr,
			)
		}
		return errors.WithKind(errors.ErrPersistence, err, "failed to register model")
	}

	r.log.Infow("Model persisted",
		"model_id", m.ID,
		"version", m.Version,
		"clusters", m.ClusterCount,
	)
	return nil
}

// Register inserts the registry row with status=training
func (r *Registry) Register(ctx context.Context, m *TrainedModel) error {
	m.Status = StatusTraining
	m.ActivatedAt = nil
	if err := r.repo.Create(ctx, m); err != nil {
		return errors.Wrap(err, "create model")
	}
	return nil
}

// Activate makes id the single production model and archives the previous one
func (r *Registry) Activate(ctx context.Context, id uuid.UUID) (*TrainedModel, error) {
	target, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "activate model %s", id)
	}
	if !target.Status.Activatable() {
		return nil, errors.NewValidationError("status", "model cannot be activated", target.Status)
	}
	if target.IsActive() {
		return target, nil
	}

	if err := r.repo.Activate(ctx, id, r.now().UTC()); err != nil {
		return nil, errors.Wrapf(err, "activate model %s", id)
	}

	activated, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "reload activated model")
	}

	r.log.Infow("Model activated", "model_id", id, "version", activated.Version)
	return activated, nil
}

// GetActive returns the production model row, or nil when none is active
func (r *Registry) GetActive(ctx context.Context) (*TrainedModel, error) {
	m, err := r.repo.GetActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get active model")
	}
	return m, nil
}

// GetByID returns a registry row
func (r *Registry) GetByID(ctx context.Context, id uuid.UUID) (*TrainedModel, error) {
	return r.repo.GetByID(ctx, id)
}

// LoadModel merges the registry row with its artifact.
// The artifact's fitted parameters take precedence over the row copy.
func (r *Registry) LoadModel(ctx context.Context, id uuid.UUID) (*TrainedModel, error) {
	m, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load model %s", id)
	}

	data, err := r.artifacts.Get(ctx, m.ArtifactKey)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Wrapf(errors.ErrIntegrity, "artifact %s missing", m.ArtifactKey)
		}
		return nil, errors.Wrap(err, "read artifact")
	}

	art, err := DecodeArtifact(data)
	if err != nil {
		return nil, err
	}
	if art.ModelID != m.ID {
		return nil, errors.Wrapf(errors.ErrIntegrity, "artifact holds model %s, registry expects %s", art.ModelID, m.ID)
	}

	m.FeatureColumns = art.FeatureColumns
	m.Scaling = art.Scaling
	m.Centroids = art.Centroids
	m.LabelMap = art.LabelMap
	m.ClusterCount = len(art.Centroids)
	return m, nil
}

// ListArchived returns archived models, newest version first
func (r *Registry) ListArchived(ctx context.Context) ([]*TrainedModel, error) {
	return r.repo.ListByStatus(ctx, StatusArchived)
}

// Lineage walks parent links from id back to the first model
func (r *Registry) Lineage(ctx context.Context, id uuid.UUID) ([]*TrainedModel, error) {
	var chain []*TrainedModel
	seen := make(map[uuid.UUID]bool)

	next := &id
	for next != nil && !seen[*next] {
		seen[*next] = true
		m, err := r.repo.GetByID(ctx, *next)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) && len(chain) > 0 {
				break
			}
			return nil, errors.Wrap(err, "walk lineage")
		}
		chain = append(chain, m)
		next = m.ParentID
	}
	return chain, nil
}

// CheckIntegrity verifies the artifact exists and belongs to m
func (r *Registry) CheckIntegrity(ctx context.Context, m *TrainedModel) IntegrityReport {
	report := IntegrityReport{ModelID: m.ID, ArtifactKey: m.ArtifactKey}

	data, err := r.artifacts.Get(ctx, m.ArtifactKey)
	if err != nil {
		report.Detail = err.Error()
		return report
	}
	report.ArtifactPresent = true

	art, err := DecodeArtifact(data)
	if err != nil {
		report.Detail = err.Error()
		return report
	}
	report.IDsMatch = art.ModelID == m.ID
	if !report.IDsMatch {
		report.Detail = "artifact model id " + art.ModelID.String()
	}
	return report
}

// MarkFailed records a model that could not complete its lifecycle
func (r *Registry) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return r.repo.UpdateStatus(ctx, id, StatusFailed)
}

// Deprecate retires a model permanently. The active model cannot be deprecated.
func (r *Registry) Deprecate(ctx context.Context, id uuid.UUID) error {
	m, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if m.IsActive() {
		return errors.NewValidationError("status", "activate another model before deprecating the active one", m.Status)
	}
	return r.repo.UpdateStatus(ctx, id, StatusDeprecated)
}
