package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/constants"
)

// nopPublisher 丢弃事件
type nopPublisher struct{}

func (nopPublisher) Publish(_ context.Context, _ Event) error { return nil }
func (nopPublisher) Close() error                             { return nil }

// NewRelayPublisher 按配置创建 worker 转发事件的目标
func NewRelayPublisher(cfg config.EventsConfig) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Relay)) {
	case "", constants.EventRelayLog:
		return NewLogSink(), nil
	case constants.EventRelayKafka:
		return NewKafkaPublisher(cfg.Kafka)
	case constants.EventRelayRabbit:
		return NewRabbitPublisher(cfg.RabbitMQ)
	case constants.EventRelayDisable:
		return nopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unsupported events.relay: %s", cfg.Relay)
	}
}
