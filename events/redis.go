package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher publishes lifecycle events over Redis Pub/Sub, one
// channel per event type under a configured prefix (spec §6 "EventBus
// configuration", Redis backend).
type RedisPublisher struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// RedisConfig configures a RedisPublisher.
type RedisConfig struct {
	Addresses     []string
	Password      string
	DB            int
	ChannelPrefix string
	DialTimeout   time.Duration
	Logger        *zap.Logger
}

// NewRedisPublisher dials a Redis client (a single node, or the first
// address of a cluster-aware deployment) and returns a publisher.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("events: at least one redis address is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addresses[0],
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	return &RedisPublisher{client: client, prefix: cfg.ChannelPrefix, timeout: dialTimeout, logger: logger}, nil
}

func (p *RedisPublisher) PublishBatchCommitted(evt BatchCommitted) error {
	return p.publish("batch_committed", evt)
}

func (p *RedisPublisher) PublishBalancePhaseResolved(evt BalancePhaseResolved) error {
	return p.publish("balance_phase_resolved", evt)
}

func (p *RedisPublisher) publish(eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", eventType, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	channel := p.prefix + ":" + eventType
	if err := p.client.Publish(ctx, channel, body).Err(); err != nil {
		p.logger.Warn("failed to publish event to redis", zap.String("channel", channel), zap.Error(err))
		return err
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
