package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/events"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 资金相关队列名称
	CriticalQueue = constants.QueueCritical

	// 同一商家结算任务去重窗口
	vendorPayoutUniqueTTL = 10 * time.Minute
	// 批量结算任务去重窗口
	payoutBatchUniqueTTL = 30 * time.Minute
)

// Client 队列客户端封装
type Client struct {
	client       *asynq.Client
	enabled      bool
	defaultQueue string
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false, defaultQueue: DefaultQueue}, nil
	}
	opt := buildRedisOpt(cfg)
	client := asynq.NewClient(opt)
	return &Client{
		client:       client,
		enabled:      true,
		defaultQueue: DefaultQueue,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueOrderStatusChanged 推送订单状态变更任务
func (c *Client) EnqueueOrderStatusChanged(ctx context.Context, payload OrderStatusChangedPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewOrderStatusChangedTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, c.defaultQueue, opts...)
}

// EnqueueOrderRefunded 推送订单退款任务
func (c *Client) EnqueueOrderRefunded(ctx context.Context, payload OrderRefundedPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewOrderRefundedTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, c.defaultQueue, opts...)
}

// EnqueueVendorPayout 推送商家结算任务（同一商家在去重窗口内只入队一次）
func (c *Client) EnqueueVendorPayout(ctx context.Context, payload VendorPayoutPayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewVendorPayoutTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, CriticalQueue,
		asynq.Unique(vendorPayoutUniqueTTL),
		asynq.MaxRetry(0),
	)
}

// EnqueuePayoutBatch 推送批量结算任务
func (c *Client) EnqueuePayoutBatch(ctx context.Context, payload PayoutBatchPayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewPayoutBatchTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, CriticalQueue,
		asynq.Unique(payoutBatchUniqueTTL),
		asynq.MaxRetry(0),
	)
}

// EnqueuePayoutReconcile 推送对账任务
func (c *Client) EnqueuePayoutReconcile(ctx context.Context, payload PayoutReconcilePayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewPayoutReconcileTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, CriticalQueue, asynq.Unique(payoutBatchUniqueTTL))
}

// EnqueueDomainEvent 推送领域事件转发任务
func (c *Client) EnqueueDomainEvent(ctx context.Context, event events.Event) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewDomainEventRelayTask(event)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, c.defaultQueue, asynq.TaskID(event.ID.String()), asynq.MaxRetry(5))
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, queueName string, opts ...asynq.Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	options := append([]asynq.Option{asynq.Queue(queueName)}, opts...)
	_, err := c.client.EnqueueContext(ctx, task, options...)
	return err
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{DefaultQueue: 1, CriticalQueue: 1}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
