package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher publishes lifecycle events to a Kafka topic as JSON
// messages, one per event, keyed by event type (spec §6 "EventBus
// configuration", Kafka backend).
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	Logger   *zap.Logger
}

// NewKafkaPublisher builds a publisher backed by a kafka.Writer in
// least-bytes balancer mode, matching the teacher's fire-and-forget
// notification style.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events: at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("events: kafka topic is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{writer: writer, logger: logger}, nil
}

func (p *KafkaPublisher) PublishBatchCommitted(evt BatchCommitted) error {
	return p.publish("batch_committed", evt)
}

func (p *KafkaPublisher) PublishBalancePhaseResolved(evt BalancePhaseResolved) error {
	return p.publish("balance_phase_resolved", evt)
}

func (p *KafkaPublisher) publish(eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", eventType, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(eventType), Value: body})
	if err != nil {
		p.logger.Warn("failed to publish event to kafka", zap.String("type", eventType), zap.Error(err))
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
