package events

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/chainindex/evmindexer/internal/config"
)

// New builds the Publisher named by cfg.Type, defaulting to a local
// in-process bus (spec §6 "EventBus configuration").
func New(cfg config.EventBusConfig, logger *zap.Logger) (Publisher, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalPublisher(logger), nil
	case "redis":
		return NewRedisPublisher(RedisConfig{
			Addresses:     cfg.Redis.Addresses,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			ChannelPrefix: cfg.Redis.ChannelPrefix,
			DialTimeout:   cfg.Redis.DialTimeout,
			Logger:        logger,
		})
	case "kafka":
		return NewKafkaPublisher(KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
			Logger:   logger,
		})
	default:
		return nil, fmt.Errorf("events: unknown event bus type %q", cfg.Type)
	}
}
