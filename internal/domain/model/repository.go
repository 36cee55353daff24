package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines operations for the model registry.
// GetActive returns (nil, nil) when no model is in production.
// Activate demotes every other active model to archived and promotes id in one
// serialised step; activating the already-active model is a no-op.
type Repository interface {
	NextVersion(ctx context.Context) (int, error)
	Create(ctx context.Context, m *TrainedModel) error
	GetByID(ctx context.Context, id uuid.UUID) (*TrainedModel, error)
	GetActive(ctx context.Context) (*TrainedModel, error)
	Activate(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	ListByStatus(ctx context.Context, status Status) ([]*TrainedModel, error)
}
