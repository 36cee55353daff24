package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pacelab/internal/adapters/kafka"
	"pacelab/internal/domain/classification"
	"pacelab/internal/domain/model"
	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	args := m.Called(ctx, topic, key, event)
	return args.Error(0)
}

func TestPublisher_NilSinkIsNoop(t *testing.T) {
	p := NewNoopPublisher()
	assert.False(t, p.Enabled())
	assert.NoError(t, p.PublishTrainingFailed(context.Background(), errors.ErrInsufficientData))
}

func TestPublisher_ModelTrained(t *testing.T) {
	sink := new(MockSink)
	p := NewPublisher(sink, "test", logger.NewNop())

	m := &model.TrainedModel{ID: uuid.New(), Version: 4, ClusterCount: 3}
	m.TrainingWindow.Count = 120
	m.Metrics.SeparationScore = 0.61

	sink.On("Publish", mock.Anything, kafka.TopicModelTrained, m.ID.String(), mock.MatchedBy(func(ev *ModelTrainedEvent) bool {
		return ev.ModelVersion == 4 && ev.SampleCount == 120 && ev.AutoActivated && ev.Type == TypeModelTrained
	})).Return(nil).Once()

	require.NoError(t, p.PublishModelTrained(context.Background(), m, true))
	sink.AssertExpectations(t)
}

func TestPublisher_ClassificationsSummary(t *testing.T) {
	sink := new(MockSink)
	p := NewPublisher(sink, "test", logger.NewNop())

	id := uuid.New()
	v := 2
	results := []classification.Result{
		{RecordID: 1, Method: classification.MethodML, ModelID: &id, ModelVersion: &v},
		{RecordID: 2, Method: classification.MethodML, ModelID: &id, ModelVersion: &v},
		{RecordID: 3, Method: classification.MethodRuleFallback, FallbackReason: classification.ReasonInvalidFeatures},
	}

	var got *ClassificationsRecordedEvent
	sink.On("Publish", mock.Anything, kafka.TopicClassificationsRecorded, id.String(), mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(3).(*ClassificationsRecordedEvent) }).
		Return(nil).Once()

	require.NoError(t, p.PublishClassifications(context.Background(), results, 1))
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 2, got.ByMethod["ml"])
	assert.Equal(t, 1, got.Fallbacks[classification.ReasonInvalidFeatures])
	assert.Equal(t, 1, got.AuditFailures)
	assert.Equal(t, &v, got.ModelVersion)
}

func TestPublisher_SinkErrorIsReturned(t *testing.T) {
	sink := new(MockSink)
	p := NewPublisher(sink, "test", logger.NewNop())

	sink.On("Publish", mock.Anything, kafka.TopicModelTrainingFailed, "timeout", mock.Anything).
		Return(assert.AnError).Once()

	err := p.PublishTrainingFailed(context.Background(), errors.Wrap(errors.ErrTrainingTimeout, "fit"))
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
