package lifecycle

import (
	"context"
	"time"

	"pacelab/internal/domain/model"
	"pacelab/internal/services/modelops"
	"pacelab/internal/workers"
	"pacelab/pkg/errors"
)

// StatusSource is the part of the orchestrator the integrity checker needs
type StatusSource interface {
	Refresh(ctx context.Context) (*model.TrainedModel, error)
	Status(ctx context.Context) (*modelops.Status, error)
}

// IntegrityChecker reloads the active model and verifies its artifact on
// every run, so activations by other processes reach this one. It runs
// once as soon as the scheduler starts.
type IntegrityChecker struct {
	*workers.BaseWorker
	source StatusSource
}

// NewIntegrityChecker creates the integrity worker
func NewIntegrityChecker(source StatusSource, interval time.Duration, enabled bool) *IntegrityChecker {
	return &IntegrityChecker{
		BaseWorker: workers.NewBaseWorker("model_integrity", interval, enabled).WithRunOnStart(),
		source:     source,
	}
}

// Run executes one check
func (w *IntegrityChecker) Run(ctx context.Context) error {
	if _, err := w.source.Refresh(ctx); err != nil {
		w.Log().Warnw("Failed to refresh active model", "error", err)
	}

	status, err := w.source.Status(ctx)
	if err != nil {
		return errors.Wrap(err, "status")
	}
	if !status.Active {
		return workers.Skip("no active model")
	}

	if !status.Integrity.OK() {
		return errors.Wrapf(errors.ErrIntegrity, "model %s: %s", status.Model.ID, status.Integrity.Detail)
	}
	if !status.Loaded {
		w.Log().Warnw("Active model is not loaded in this process", "model_id", status.Model.ID)
	}
	return nil
}
