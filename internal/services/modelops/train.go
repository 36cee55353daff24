package modelops

import (
	"context"
	"time"

	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/model"
	"pacelab/internal/metrics"
	"pacelab/pkg/errors"
)

type fitResult struct {
	model *model.TrainedModel
	err   error
}

// Train fits a new model on the full record history and registers it.
// With an active model in place and force=false it does nothing and returns
// a noop outcome. Failures come back both as the outcome and as the error.
func (s *Service) Train(ctx context.Context, force bool) (*TrainingOutcome, error) {
	started := s.now()
	s.tracker.AddBreadcrumb(ctx, "train", "lifecycle", errors.LevelInfo, map[string]interface{}{"force": force})

	outcome, err := s.train(ctx, force, started)
	outcome.Duration = time.Since(started)
	metrics.RecordTraining(outcome.Kind, outcome.Duration)

	level := errors.LevelInfo
	if err != nil {
		level = errors.LevelError
	}
	s.tracker.AddBreadcrumb(ctx, "train finished", "lifecycle", level, map[string]interface{}{
		"kind":     outcome.Kind,
		"duration": outcome.Duration.String(),
	})

	if err != nil {
		s.log.Errorw("Training failed", "kind", outcome.Kind, "error", err)
		if pubErr := s.events.PublishTrainingFailed(ctx, err); pubErr != nil {
			s.log.Warnw("Failed to publish training failure", "error", pubErr)
		}
		return outcome, err
	}
	return outcome, nil
}

func (s *Service) train(ctx context.Context, force bool, started time.Time) (*TrainingOutcome, error) {
	current, err := s.registry.GetActive(ctx)
	if err != nil {
		return failedOutcome(err, nil, started), err
	}
	if current != nil && !force {
		s.log.Infow("Active model present, skipping training", "model_id", current.ID, "version", current.Version)
		return &TrainingOutcome{
			Kind:    KindNoop,
			Message: "an active model exists; use force to retrain",
			Model:   current,
		}, nil
	}

	records, err := s.records.FetchAll(ctx)
	if err != nil {
		err = errors.Wrap(err, "failed to load activity records")
		return failedOutcome(err, nil, started), err
	}
	vectors, window := activity.FilterValid(records)
	s.log.Infow("Training started",
		"records", len(records),
		"valid", len(vectors),
		"force", force,
	)

	m, err := s.fit(ctx, vectors, window)
	if err != nil {
		return failedOutcome(err, nil, started), err
	}
	metrics.RecordTrainedModel(len(vectors), m.Metrics.SeparationScore)

	if current != nil {
		parent := current.ID
		m.ParentID = &parent
	}

	if err := s.registry.Persist(ctx, m); err != nil {
		return failedOutcome(err, nil, started), err
	}

	outcome := &TrainingOutcome{
		Success: true,
		Kind:    KindTrained,
		Message: "model trained",
		Model:   m,
	}

	if s.cfg.AutoActivate {
		activated, err := s.Activate(ctx, m.ID)
		if err != nil {
			s.markFailed(ctx, m)
			out := failedOutcome(err, m, started)
			out.Message = "model trained but could not be activated: " + err.Error()
			return out, err
		}
		outcome.Model = activated
		outcome.Activated = true
		outcome.Message = "model trained and activated"
	}

	if err := s.events.PublishModelTrained(ctx, outcome.Model, outcome.Activated); err != nil {
		s.log.Warnw("Failed to publish training event", "model_id", m.ID, "error", err)
	}

	s.log.Infow("Training finished",
		"model_id", m.ID,
		"version", m.Version,
		"activated", outcome.Activated,
		"separation", m.Metrics.SeparationScore,
	)
	return outcome, nil
}

// fit runs the trainer bounded by the training timeout. The fit itself checks
// the context between iterations; on timeout its result is discarded.
func (s *Service) fit(ctx context.Context, vectors []activity.FeatureVector, window activity.TrainingWindow) (*model.TrainedModel, error) {
	fitCtx, cancel := context.WithTimeout(ctx, s.cfg.TrainingTimeout)
	defer cancel()

	done := make(chan fitResult, 1)
	go func() {
		m, err := s.trainer.Fit(fitCtx, vectors, window)
		done <- fitResult{model: m, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && fitCtx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrapf(errors.ErrTrainingTimeout, "exceeded %s", s.cfg.TrainingTimeout)
		}
		return res.model, res.err
	case <-fitCtx.Done():
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "training cancelled")
		}
		return nil, errors.Wrapf(errors.ErrTrainingTimeout, "exceeded %s", s.cfg.TrainingTimeout)
	}
}

// markFailed flags a registered model that never reached production
func (s *Service) markFailed(ctx context.Context, m *model.TrainedModel) {
	if row, err := s.registry.GetByID(ctx, m.ID); err == nil && row.IsActive() {
		return
	}
	if err := s.registry.MarkFailed(ctx, m.ID); err != nil {
		s.log.Warnw("Failed to mark model as failed", "model_id", m.ID, "error", err)
		return
	}
	m.Status = model.StatusFailed
}
