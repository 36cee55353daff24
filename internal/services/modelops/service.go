package modelops

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	errnoop "pacelab/internal/adapters/errors/noop"
	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
	"pacelab/internal/domain/model"
	"pacelab/internal/events"
	"pacelab/internal/metrics"
	"pacelab/internal/ml/classifier"
	"pacelab/internal/ml/cluster"
	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

const (
	changedBySystem = "system"
	changedByUser   = "user"
)

// Config holds orchestration settings
type Config struct {
	AutoActivate    bool
	TrainingTimeout time.Duration
}

// Deps are the collaborators a Service is built from. Events and Tracker may be nil.
type Deps struct {
	Records    activity.Repository
	Registry   *model.Registry
	Trainer    *cluster.Trainer
	Classifier *classifier.Classifier
	Trail      *audit.Trail
	Projection classification.Repository
	Events     *events.Publisher
	Tracker    errors.Tracker
}

// Service drives the model lifecycle: train, activate, classify, status.
// The model used for classification is swapped atomically on activation.
type Service struct {
	records    activity.Repository
	registry   *model.Registry
	trainer    *cluster.Trainer
	classifier *classifier.Classifier
	trail      *audit.Trail
	projection classification.Repository
	events     *events.Publisher
	tracker    errors.Tracker
	cfg        Config

	active atomic.Pointer[model.TrainedModel]
	now    func() time.Time
	log    *logger.Logger

	// throttles per-record fallback warnings on large batches
	fallbackLog rate.Sometimes
}

// NewService creates the orchestrator
func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Records == nil || deps.Registry == nil || deps.Trainer == nil ||
		deps.Classifier == nil || deps.Trail == nil || deps.Projection == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "modelops: missing dependency")
	}
	if cfg.TrainingTimeout <= 0 {
		cfg.TrainingTimeout = 5 * time.Minute
	}
	if deps.Events == nil {
		deps.Events = events.NewNoopPublisher()
	}
	if deps.Tracker == nil {
		deps.Tracker = errnoop.New()
	}

	return &Service{
		records:    deps.Records,
		registry:   deps.Registry,
		trainer:    deps.Trainer,
		classifier: deps.Classifier,
		trail:      deps.Trail,
		projection: deps.Projection,
		events:     deps.Events,
		tracker:    deps.Tracker,
		cfg:        cfg,
		now:        time.Now,
		log:        logger.Get().With("component", "modelops"),

		fallbackLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}, nil
}

// ActiveModel returns the model this process classifies with, or nil
func (s *Service) ActiveModel() *model.TrainedModel {
	return s.active.Load()
}

// Activate promotes id to production. A conflicting concurrent activation is
// retried once. On success the in-memory model is replaced.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) (*model.TrainedModel, error) {
	previous, err := s.registry.GetActive(ctx)
	if err != nil {
		s.log.Warnw("Failed to read active model before activation", "error", err)
	}

	s.tracker.AddBreadcrumb(ctx, "activate model", "lifecycle", errors.LevelInfo, map[string]interface{}{
		"model_id": id.String(),
	})

	activated, err := s.registry.Activate(ctx, id)
	if errors.Is(err, errors.ErrActivationConflict) {
		s.log.Warnw("Activation conflict, retrying once", "model_id", id)
		_ = s.tracker.CaptureMessage(ctx, "activation conflict", errors.LevelWarning, map[string]string{
			"model_id": id.String(),
		})
		activated, err = s.registry.Activate(ctx, id)
	}
	if err != nil {
		status := "error"
		if errors.Is(err, errors.ErrActivationConflict) {
			status = "conflict"
		}
		metrics.RecordActivation(status, 0)
		return nil, err
	}

	loaded, err := s.registry.LoadModel(ctx, id)
	if err != nil {
		metrics.RecordIntegrity(false)
		s.log.Errorw("Activated model could not be loaded", "model_id", id, "error", err)
		return nil, errors.Wrap(err, "load activated model")
	}
	s.active.Store(loaded)
	metrics.RecordActivation("success", loaded.Version)

	if previous != nil && previous.ID == id {
		return loaded, nil
	}

	var previousID *uuid.UUID
	if previous != nil {
		previousID = &previous.ID
	}
	loaded.ActivatedAt = activated.ActivatedAt
	if err := s.events.PublishModelActivated(ctx, loaded, previousID); err != nil {
		s.log.Warnw("Failed to publish activation event", "model_id", id, "error", err)
	}

	s.log.Infow("Active model swapped", "model_id", id, "version", loaded.Version, "previous", previousID)
	return loaded, nil
}

// Refresh reloads the in-memory model from the registry so activations made
// by other processes are picked up. It returns the model now in use.
func (s *Service) Refresh(ctx context.Context) (*model.TrainedModel, error) {
	active, err := s.registry.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		if s.active.Swap(nil) != nil {
			s.log.Warn("Registry has no active model, cleared in-memory model")
		}
		metrics.ActiveModelVersion.Set(0)
		return nil, nil
	}

	if current := s.active.Load(); current != nil && current.ID == active.ID {
		return current, nil
	}

	loaded, err := s.registry.LoadModel(ctx, active.ID)
	if err != nil {
		return nil, err
	}
	s.active.Store(loaded)
	metrics.ActiveModelVersion.Set(float64(loaded.Version))

	s.log.Infow("Loaded active model", "model_id", loaded.ID, "version", loaded.Version)
	return loaded, nil
}

// Status reports the active model and checks it against its artifact.
// A nil summary with Active=false means no model is in production.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	active, err := s.registry.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return &Status{}, nil
	}

	report := s.registry.CheckIntegrity(ctx, active)
	metrics.RecordIntegrity(report.OK())
	if !report.OK() {
		s.log.Errorw("Model registry and artifact store disagree",
			"model_id", active.ID,
			"artifact_key", active.ArtifactKey,
			"detail", report.Detail,
		)
	}

	loaded := s.active.Load()
	return &Status{
		Active:    true,
		Model:     Summarize(active),
		Integrity: &report,
		Loaded:    loaded != nil && loaded.ID == active.ID,
	}, nil
}

// Models lists the active model followed by archived ones, newest first
func (s *Service) Models(ctx context.Context) ([]*model.TrainedModel, error) {
	var out []*model.TrainedModel

	active, err := s.registry.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		out = append(out, active)
	}

	archived, err := s.registry.ListArchived(ctx)
	if err != nil {
		return nil, err
	}
	return append(out, archived...), nil
}

// Lineage returns id and its ancestors, newest first
func (s *Service) Lineage(ctx context.Context, id uuid.UUID) ([]*model.TrainedModel, error) {
	return s.registry.Lineage(ctx, id)
}

// Deprecate retires a non-active model so it can never be activated again
func (s *Service) Deprecate(ctx context.Context, id uuid.UUID) error {
	if err := s.registry.Deprecate(ctx, id); err != nil {
		return err
	}
	s.log.Infow("Model deprecated", "model_id", id)
	return nil
}

// GetHistory returns a record's decisions, newest first
func (s *Service) GetHistory(ctx context.Context, recordID int64) ([]*audit.Entry, error) {
	return s.trail.GetHistory(ctx, recordID)
}

// GetStats aggregates the decision log per source
func (s *Service) GetStats(ctx context.Context, filter audit.StatsFilter) ([]audit.SourceStats, error) {
	return s.trail.GetStats(ctx, filter)
}
