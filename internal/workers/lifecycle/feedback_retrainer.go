package lifecycle

import (
	"context"
	"time"

	"pacelab/internal/services/modelops"
	"pacelab/internal/workers"
)

// retrainLockKey is namespaced by the locker
const retrainLockKey = "retrain"

// Retrainer is the part of the orchestrator the retrainer needs
type Retrainer interface {
	RetrainFromFeedback(ctx context.Context, threshold int) (*modelops.TrainingOutcome, error)
}

// Locker provides a cross-process mutex. The redis adapter satisfies it.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// FeedbackRetrainer retrains once enough user feedback has accumulated.
// With a locker only one process retrains at a time.
type FeedbackRetrainer struct {
	*workers.BaseWorker
	retrainer Retrainer
	locker    Locker
	threshold int
	lockTTL   time.Duration
}

// NewFeedbackRetrainer creates the retraining worker. locker may be nil.
func NewFeedbackRetrainer(retrainer Retrainer, locker Locker, threshold int, lockTTL time.Duration, interval time.Duration, enabled bool) *FeedbackRetrainer {
	if threshold < 1 {
		threshold = 1
	}
	return &FeedbackRetrainer{
		BaseWorker: workers.NewBaseWorker("feedback_retrainer", interval, enabled),
		retrainer:  retrainer,
		locker:     locker,
		threshold:  threshold,
		lockTTL:    lockTTL,
	}
}

// Run executes one check
func (w *FeedbackRetrainer) Run(ctx context.Context) error {
	if w.locker != nil {
		acquired, err := w.locker.AcquireLock(ctx, retrainLockKey, w.lockTTL)
		if err != nil {
			return err
		}
		if !acquired {
			return workers.Skip("retrain lock held by another process")
		}
		defer func() {
			if err := w.locker.ReleaseLock(context.Background(), retrainLockKey); err != nil {
				w.Log().Warnw("Failed to release retrain lock", "error", err)
			}
		}()
	}

	outcome, err := w.retrainer.RetrainFromFeedback(ctx, w.threshold)
	if err != nil {
		return err
	}
	if outcome == nil {
		return workers.Skip("feedback backlog below threshold")
	}

	w.Log().Infow("Retrained from feedback",
		"kind", outcome.Kind,
		"model_id", outcome.Model.ID,
		"activated", outcome.Activated,
	)
	return nil
}
