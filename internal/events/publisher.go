package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pacelab/internal/adapters/kafka"
	"pacelab/internal/domain/classification"
	"pacelab/internal/domain/model"
	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

// Sink delivers an encoded event to a topic. *kafka.Producer satisfies it.
type Sink interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

var _ Sink = (*kafka.Producer)(nil)

// ModelTrainedEvent is emitted after a model was fitted and registered
type ModelTrainedEvent struct {
	BaseEvent
	ModelID       uuid.UUID  `json:"model_id"`
	ModelVersion  int        `json:"model_version"`
	ParentID      *uuid.UUID `json:"parent_model_id,omitempty"`
	ClusterCount  int        `json:"cluster_count"`
	SampleCount   int        `json:"sample_count"`
	Separation    float64    `json:"separation_score"`
	AutoActivated bool       `json:"auto_activated"`
}

// ModelActivatedEvent is emitted when a model becomes the production model
type ModelActivatedEvent struct {
	BaseEvent
	ModelID      uuid.UUID  `json:"model_id"`
	ModelVersion int        `json:"model_version"`
	PreviousID   *uuid.UUID `json:"previous_model_id,omitempty"`
	ActivatedAt  time.Time  `json:"activated_at"`
}

// TrainingFailedEvent is emitted when a training run ends without a new model
type TrainingFailedEvent struct {
	BaseEvent
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// ClassificationsRecordedEvent summarises one classification batch
type ClassificationsRecordedEvent struct {
	BaseEvent
	ModelID       *uuid.UUID     `json:"model_id,omitempty"`
	ModelVersion  *int           `json:"model_version,omitempty"`
	Total         int            `json:"total"`
	ByMethod      map[string]int `json:"by_method"`
	Fallbacks     map[string]int `json:"fallbacks,omitempty"`
	AuditFailures int            `json:"audit_failures"`
}

// Publisher publishes lifecycle events. A nil sink turns every call into a no-op.
type Publisher struct {
	sink   Sink
	source string
	log    *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(sink Sink, source string, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Get()
	}
	return &Publisher{
		sink:   sink,
		source: source,
		log:    log.With("component", "event_publisher"),
	}
}

// NewNoopPublisher returns a publisher that drops everything
func NewNoopPublisher() *Publisher {
	return &Publisher{log: logger.NewNop()}
}

// Enabled reports whether events leave the process
func (p *Publisher) Enabled() bool {
	return p != nil && p.sink != nil
}

// PublishModelTrained publishes a model trained event
func (p *Publisher) PublishModelTrained(ctx context.Context, m *model.TrainedModel, autoActivated bool) error {
	return p.publish(ctx, kafka.TopicModelTrained, m.ID.String(), &ModelTrainedEvent{
		BaseEvent:     NewBaseEvent(TypeModelTrained, p.source),
		ModelID:       m.ID,
		ModelVersion:  m.Version,
		ParentID:      m.ParentID,
		ClusterCount:  m.ClusterCount,
		SampleCount:   m.TrainingWindow.Count,
		Separation:    m.Metrics.SeparationScore,
		AutoActivated: autoActivated,
	})
}

// PublishModelActivated publishes a model activated event
func (p *Publisher) PublishModelActivated(ctx context.Context, m *model.TrainedModel, previous *uuid.UUID) error {
	ev := &ModelActivatedEvent{
		BaseEvent:    NewBaseEvent(TypeModelActivated, p.source),
		ModelID:      m.ID,
		ModelVersion: m.Version,
		PreviousID:   previous,
	}
	if m.ActivatedAt != nil {
		ev.ActivatedAt = *m.ActivatedAt
	}
	return p.publish(ctx, kafka.TopicModelActivated, m.ID.String(), ev)
}

// PublishTrainingFailed publishes a training failure event
func (p *Publisher) PublishTrainingFailed(ctx context.Context, cause error) error {
	return p.publish(ctx, kafka.TopicModelTrainingFailed, errors.Kind(cause), &TrainingFailedEvent{
		BaseEvent: NewBaseEvent(TypeModelTrainingFailed, p.source),
		Kind:      errors.Kind(cause),
		Error:     SanitizeUTF8(cause.Error()),
	})
}

// PublishClassifications publishes a batch summary
func (p *Publisher) PublishClassifications(ctx context.Context, results []classification.Result, auditFailures int) error {
	ev := &ClassificationsRecordedEvent{
		BaseEvent:     NewBaseEvent(TypeClassificationsRecorded, p.source),
		Total:         len(results),
		ByMethod:      make(map[string]int),
		Fallbacks:     make(map[string]int),
		AuditFailures: auditFailures,
	}
	for _, r := range results {
		ev.ByMethod[r.Method.String()]++
		if r.FallbackReason != "" {
			ev.Fallbacks[r.FallbackReason]++
		}
		if ev.ModelID == nil && r.ModelID != nil {
			ev.ModelID = r.ModelID
			ev.ModelVersion = r.ModelVersion
		}
	}

	key := "none"
	if ev.ModelID != nil {
		key = ev.ModelID.String()
	}
	return p.publish(ctx, kafka.TopicClassificationsRecorded, key, ev)
}

// publish is a generic helper to publish any event
func (p *Publisher) publish(ctx context.Context, topic, key string, event interface{}) error {
	if !p.Enabled() {
		return nil
	}

	if err := p.sink.Publish(ctx, topic, key, event); err != nil {
		p.log.Errorw("Failed to publish event", "topic", topic, "key", key, "error", err)
		return errors.Wrap(err, "publish event")
	}

	p.log.Debugw("Event published", "topic", topic, "key", key)
	return nil
}
