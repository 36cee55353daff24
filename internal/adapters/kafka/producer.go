package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"pacelab/internal/metrics"
	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

const contentTypeJSON = "application/json"

// Producer writes lifecycle events as JSON, one writer per topic
type Producer struct {
	mu      sync.Mutex
	writers map[string]*kafka.Writer
	cfg     ProducerConfig
	log     *logger.Logger
}

type ProducerConfig struct {
	Brokers []string
	Async   bool
	// BatchTimeout bounds how long a sync write waits to fill a batch.
	// Lifecycle events are rare, so the default is short.
	BatchTimeout time.Duration
}

func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	return &Producer{
		writers: make(map[string]*kafka.Writer),
		cfg:     cfg,
		log:     logger.Get().With("component", "kafka_producer"),
	}
}

func (p *Producer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // events for one model stay ordered
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           p.cfg.BatchTimeout,
		Async:                  p.cfg.Async,
		AllowAutoTopicCreation: true,
	}
	p.writers[topic] = w
	return w
}

// Publish encodes event and writes it keyed by key
func (p *Producer) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "encode %s event", topic)
	}

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: []kafka.Header{{Key: "content-type", Value: []byte(contentTypeJSON)}},
		Time:    time.Now().UTC(),
	}
	if err := p.writer(topic).WriteMessages(ctx, msg); err != nil {
		metrics.RecordKafkaMessage(topic, "failed")
		return errors.Wrapf(errors.ErrUnavailable, "publish to %s: %v", topic, err)
	}

	metrics.RecordKafkaMessage(topic, "produced")
	p.log.Debugw("Event published", "topic", topic, "key", key)
	return nil
}

// Close flushes and closes every writer
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs errors.MultiError
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			p.log.Warnw("Failed to close kafka writer", "topic", topic, "error", err)
			errs.Add(err)
		}
	}
	return errs.ToError()
}
