package model_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"pacelab/internal/domain/model"
)

// MockRepository is a testify mock of model.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) NextVersion(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) Create(ctx context.Context, tm *model.TrainedModel) error {
	args := m.Called(ctx, tm)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TrainedModel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TrainedModel), args.Error(1)
}

func (m *MockRepository) GetActive(ctx context.Context) (*model.TrainedModel, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TrainedModel), args.Error(1)
}

func (m *MockRepository) Activate(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockRepository) ListByStatus(ctx context.Context, status model.Status) ([]*model.TrainedModel, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]*model.TrainedModel), args.Error(1)
}
