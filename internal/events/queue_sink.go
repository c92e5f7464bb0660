package events

import (
	"context"

	"github.com/dujiao-next/commission-engine/internal/logger"
)

// Enqueuer 事件入队接口（由 asynq 队列客户端实现）
type Enqueuer interface {
	Enabled() bool
	EnqueueDomainEvent(ctx context.Context, event Event) error
}

// QueueSink 将事件写入异步队列，由 worker 转发到外部消息系统
type QueueSink struct {
	queue    Enqueuer
	fallback Sink
}

// NewQueueSink 创建队列事件投递，队列不可用时回退到 fallback
func NewQueueSink(queue Enqueuer, fallback Sink) *QueueSink {
	if fallback == nil {
		fallback = NewLogSink()
	}
	return &QueueSink{queue: queue, fallback: fallback}
}

// Publish 入队事件
func (s *QueueSink) Publish(ctx context.Context, event Event) error {
	if s.queue == nil || !s.queue.Enabled() {
		return s.fallback.Publish(ctx, event)
	}
	if err := s.queue.EnqueueDomainEvent(ctx, event); err != nil {
		logger.Named("events").Warnw("domain_event_enqueue_failed",
			"event_id", event.ID.String(),
			"event_name", event.Name,
			"error", err,
		)
		return s.fallback.Publish(ctx, event)
	}
	return nil
}
