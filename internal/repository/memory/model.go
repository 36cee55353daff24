package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pacelab/internal/domain/model"
	"pacelab/pkg/errors"
)

// Compile-time check
var _ model.Repository = (*ModelRepository)(nil)

// ModelRepository implements model.Repository in memory.
// A single mutex serialises activation the way the advisory lock does in Postgres.
type ModelRepository struct {
	mu      sync.RWMutex
	models  map[uuid.UUID]*model.TrainedModel
	version int
}

// NewModelRepository creates an empty registry
func NewModelRepository() *ModelRepository {
	return &ModelRepository{models: make(map[uuid.UUID]*model.TrainedModel)}
}

// NextVersion allocates the next model version
func (r *ModelRepository) NextVersion(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version++
	return r.version, nil
}

// Create inserts a model
func (r *ModelRepository) Create(_ context.Context, m *model.TrainedModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[m.ID]; exists {
		return errors.Wrapf(errors.ErrAlreadyExists, "model %s", m.ID)
	}
	for _, existing := range r.models {
		if existing.Version == m.Version {
			return errors.Wrapf(errors.ErrAlreadyExists, "model version %d", m.Version)
		}
	}
	r.models[m.ID] = copyModel(m)
	return nil
}

// GetByID retrieves a model
func (r *ModelRepository) GetByID(_ context.Context, id uuid.UUID) (*model.TrainedModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[id]
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "model not found")
	}
	return copyModel(m), nil
}

// GetActive returns the active model or nil
func (r *ModelRepository) GetActive(_ context.Context) (*model.TrainedModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.models {
		if m.Status == model.StatusActive {
			return copyModel(m), nil
		}
	}
	return nil, nil
}

// Activate demotes the current active model and promotes id
func (r *ModelRepository) Activate(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.models[id]
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "model not found")
	}
	if !target.Status.Activatable() {
		return errors.NewValidationError("status", "model cannot be activated", target.Status)
	}
	if target.Status == model.StatusActive {
		return nil
	}

	for _, m := range r.models {
		if m.Status == model.StatusActive {
			m.Status = model.StatusArchived
		}
	}
	target.Status = model.StatusActive
	activatedAt := at
	target.ActivatedAt = &activatedAt
	return nil
}

// UpdateStatus changes a model's status outside activation
func (r *ModelRepository) UpdateStatus(_ context.Context, id uuid.UUID, status model.Status) error {
	if !status.Valid() || status == model.StatusActive {
		return errors.NewValidationError("status", "use Activate to promote a model", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.models[id]
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "model not found")
	}
	m.Status = status
	return nil
}

// ListByStatus returns models in status, newest version first
func (r *ModelRepository) ListByStatus(_ context.Context, status model.Status) ([]*model.TrainedModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.TrainedModel, 0)
	for _, m := range r.models {
		if m.Status == status {
			out = append(out, copyModel(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func copyModel(m *model.TrainedModel) *model.TrainedModel {
	c := *m
	if m.ActivatedAt != nil {
		t := *m.ActivatedAt
		c.ActivatedAt = &t
	}
	if m.ParentID != nil {
		p := *m.ParentID
		c.ParentID = &p
	}
	return &c
}
