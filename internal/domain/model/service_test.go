package model_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pacelab/internal/adapters/artifacts/badgerstore"
	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/classification"
	"pacelab/internal/domain/model"
	"pacelab/internal/repository/memory"
	"pacelab/pkg/errors"
)

func newModel() *model.TrainedModel {
	return &model.TrainedModel{
		ID:             uuid.New(),
		TrainedAt:      time.Now().UTC(),
		ClusterCount:   2,
		FeatureColumns: activity.DefaultColumns,
		Scaling: model.ScalingParams{
			Means:   []float64{10, 5, 40},
			StdDevs: []float64{2, 1, 10},
		},
		Centroids: [][]float64{{-1, 0, 0}, {1, 0, 0}},
		LabelMap:  map[int]classification.Label{0: "run", 1: "walk"},
	}
}

func newRegistry(t *testing.T) (*model.Registry, *memory.ModelRepository, *badgerstore.Store) {
	t.Helper()
	store, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	repo := memory.NewModelRepository()
	return model.NewRegistry(repo, store), repo, store
}

func persist(t *testing.T, reg *model.Registry) *model.TrainedModel {
	t.Helper()
	m := newModel()
	require.NoError(t, reg.Persist(context.Background(), m))
	return m
}

func TestRegistry_PersistAssignsVersionAndStatus(t *testing.T) {
	reg, _, store := newRegistry(t)
	ctx := context.Background()

	first := persist(t, reg)
	second := persist(t, reg)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, model.StatusTraining, first.Status)
	assert.Equal(t, "models/"+first.ID.String(), first.ArtifactKey)

	_, err := store.Get(ctx, first.ArtifactKey)
	assert.NoError(t, err)
}

func TestRegistry_PersistRemovesArtifactWhenRowFails(t *testing.T) {
	store, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	repo := new(MockRepository)
	repo.On("NextVersion", mock.Anything).Return(7, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	reg := model.NewRegistry(repo, store)
	m := newModel()

	err = reg.Persist(context.Background(), m)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPersistence)

	_, err = store.Get(context.Background(), m.ArtifactKey)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	repo.AssertExpectations(t)
}

func TestRegistry_ActivateArchivesPrevious(t *testing.T) {
	reg, _, _ := newRegistry(t)
	ctx := context.Background()

	first := persist(t, reg)
	second := persist(t, reg)

	active, err := reg.Activate(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, active.Status)
	require.NotNil(t, active.ActivatedAt)

	_, err = reg.Activate(ctx, second.ID)
	require.NoError(t, err)

	current, err := reg.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	archived, err := reg.ListArchived(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, first.ID, archived[0].ID)
}

func TestRegistry_ActivateIsIdempotent(t *testing.T) {
	reg, _, _ := newRegistry(t)
	ctx := context.Background()
	m := persist(t, reg)

	first, err := reg.Activate(ctx, m.ID)
	require.NoError(t, err)
	second, err := reg.Activate(ctx, m.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ActivatedAt, second.ActivatedAt)
	archived, err := reg.ListArchived(ctx)
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestRegistry_ActivateRejectsFailedAndDeprecated(t *testing.T) {
	reg, _, _ := newRegistry(t)
	ctx := context.Background()

	failed := persist(t, reg)
	require.NoError(t, reg.MarkFailed(ctx, failed.ID))
	_, err := reg.Activate(ctx, failed.ID)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	deprecated := persist(t, reg)
	require.NoError(t, reg.Deprecate(ctx, deprecated.ID))
	_, err = reg.Activate(ctx, deprecated.ID)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = reg.Activate(ctx, uuid.New())
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRegistry_ArchivedCanBeReactivated(t *testing.T) {
	reg, _, _ := newRegistry(t)
	ctx := context.Background()

	first := persist(t, reg)
	second := persist(t, reg)
	_, err := reg.Activate(ctx, first.ID)
	require.NoError(t, err)
	_, err = reg.Activate(ctx, second.ID)
	require.NoError(t, err)

	_, err = reg.Activate(ctx, first.ID)
	require.NoError(t, err)

	active, err := reg.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)
}

func TestRegistry_ConcurrentActivationLeavesOneActive(t *testing.T) {
	reg, repo, _ := newRegistry(t)
	ctx := context.Background()

	const n = 16
	models := make([]*model.TrainedModel, n)
	for i := range models {
		models[i] = persist(t, reg)
	}

	var wg sync.WaitGroup
	for _, m := range models {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := reg.Activate(ctx, id)
			assert.NoError(t, err)
		}(m.ID)
	}
	wg.Wait()

	active, err := repo.ListByStatus(ctx, model.StatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	archived, err := repo.ListByStatus(ctx, model.StatusArchived)
	require.NoError(t, err)
	assert.Len(t, archived, n-1)
}

func TestRegistry_DeprecateActiveRefused(t *testing.T) {
	reg, _, _ := newRegistry(t)
	ctx := context.Background()
	m := persist(t, reg)
	_, err := reg.Activate(ctx, m.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, reg.Deprecate(ctx, m.ID), errors.ErrInvalidInput)
}

func TestRegistry_LoadModelAndIntegrity(t *testing.T) {
	reg, _, store := newRegistry(t)
	ctx := context.Background()
	m := persist(t, reg)

	loaded, err := reg.LoadModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Centroids, loaded.Centroids)
	assert.Equal(t, m.LabelMap, loaded.LabelMap)
	assert.True(t, reg.CheckIntegrity(ctx, loaded).OK())

	// Overwrite the artifact with another model's payload
	other := newModel()
	other.Version = 99
	data, err := model.NewArtifact(other).Encode()
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, m.ArtifactKey, data))

	_, err = reg.LoadModel(ctx, m.ID)
	assert.ErrorIs(t, err, errors.ErrIntegrity)

	report := reg.CheckIntegrity(ctx, loaded)
	assert.True(t, report.ArtifactPresent)
	assert.False(t, report.IDsMatch)
	assert.False(t, report.OK())

	require.NoError(t, store.Delete(ctx, m.ArtifactKey))
	_, err = reg.LoadModel(ctx, m.ID)
	assert.ErrorIs(t, err, errors.ErrIntegrity)
	assert.False(t, reg.CheckIntegrity(ctx, loaded).ArtifactPresent)
}

func TestRegistry_Lineage(t *testing.T) {
	reg, _, _ := newRegistry(t)
	ctx := context.Background()

	root := persist(t, reg)

	child := newModel()
	child.ParentID = &root.ID
	require.NoError(t, reg.Persist(ctx, child))

	grandchild := newModel()
	grandchild.ParentID = &child.ID
	require.NoError(t, reg.Persist(ctx, grandchild))

	chain, err := reg.Lineage(ctx, grandchild.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, grandchild.ID, chain[0].ID)
	assert.Equal(t, child.ID, chain[1].ID)
	assert.Equal(t, root.ID, chain[2].ID)
}

func TestDecodeArtifact_RejectsIncompleteLabelMap(t *testing.T) {
	m := newModel()
	m.LabelMap = map[int]classification.Label{0: "run"}
	data, err := model.NewArtifact(m).Encode()
	require.NoError(t, err)

	_, err = model.DecodeArtifact(data)
	assert.ErrorIs(t, err, errors.ErrIntegrity)

	_, err = model.DecodeArtifact([]byte("not json"))
	assert.ErrorIs(t, err, errors.ErrIntegrity)
}

func TestDecodeArtifact_RejectsLabelCollision(t *testing.T) {
	m := newModel()
	m.LabelMap = map[int]classification.Label{0: "run", 1: "run"}
	data, err := model.NewArtifact(m).Encode()
	require.NoError(t, err)

	_, err = model.DecodeArtifact(data)
	require.ErrorIs(t, err, errors.ErrIntegrity)
	assert.Contains(t, err.Error(), "assigned to clusters 0 and 1")

	m.LabelMap = map[int]classification.Label{0: "run", 1: "walk", 2: "mixed"}
	data, err = model.NewArtifact(m).Encode()
	require.NoError(t, err)

	_, err = model.DecodeArtifact(data)
	assert.ErrorIs(t, err, errors.ErrIntegrity)
}
