package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dujiao-next/commission-engine/internal/logger"

	"github.com/google/uuid"
)

// Event 领域事件
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Name       string                 `json:"name"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

// New 创建领域事件
func New(name string, payload map[string]interface{}) Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Event{
		ID:         uuid.New(),
		Name:       name,
		OccurredAt: time.Now(),
		Payload:    payload,
	}
}

// Key 事件分区键：优先 vendor_id，其次 order_id，最后事件ID
func (e Event) Key() string {
	for _, field := range []string{"vendor_id", "order_id", "payout_id"} {
		if value, ok := e.Payload[field]; ok && value != nil {
			return fmt.Sprintf("%s:%v", field, value)
		}
	}
	return e.ID.String()
}

// Sink 事件投递接口
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Publisher 需要释放连接的事件投递目标
type Publisher interface {
	Sink
	Close() error
}

// SinkFunc 函数式事件投递
type SinkFunc func(ctx context.Context, event Event) error

// Publish 调用函数本身
func (f SinkFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// LogSink 将事件写入日志
type LogSink struct{}

// NewLogSink 创建日志事件投递
func NewLogSink() *LogSink {
	return &LogSink{}
}

// Publish 记录事件
func (s *LogSink) Publish(_ context.Context, event Event) error {
	logger.Named("events").Infow("domain_event_published",
		"event_id", event.ID.String(),
		"event_name", event.Name,
		"occurred_at", event.OccurredAt,
		"payload", event.Payload,
	)
	return nil
}

// Close 无需释放资源
func (s *LogSink) Close() error {
	return nil
}

// MultiSink 依次投递到多个目标，单个目标失败不影响其他目标
type MultiSink []Sink

// Publish 投递事件并合并错误
func (m MultiSink) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit 投递事件，失败只记录日志（核心流程不依赖事件投递结果）
func Emit(ctx context.Context, sink Sink, name string, payload map[string]interface{}) {
	if sink == nil {
		return
	}
	event := New(name, payload)
	if err := sink.Publish(ctx, event); err != nil {
		logger.Named("events").Warnw("domain_event_publish_failed",
			"event_id", event.ID.String(),
			"event_name", name,
			"error", err,
		)
	}
}
