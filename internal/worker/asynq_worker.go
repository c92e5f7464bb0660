package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/events"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/provider"
	"github.com/dujiao-next/commission-engine/internal/queue"
	"github.com/dujiao-next/commission-engine/internal/service"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOrderStatusChanged, c.handleOrderStatusChanged)
	mux.HandleFunc(queue.TaskOrderRefunded, c.handleOrderRefunded)
	mux.HandleFunc(queue.TaskVendorPayout, c.handleVendorPayout)
	mux.HandleFunc(queue.TaskPayoutBatch, c.handlePayoutBatch)
	mux.HandleFunc(queue.TaskPayoutReconcile, c.handlePayoutReconcile)
	mux.HandleFunc(queue.TaskDomainEventRelay, c.handleDomainEventRelay)
}

func (c *Consumer) handleOrderStatusChanged(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_status_changed_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderStatusChangedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_status_changed_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	status := strings.ToLower(strings.TrimSpace(payload.Status))
	if payload.OrderID == 0 || status == "" {
		logger.Debugw("worker_order_status_changed_skip_invalid_payload", "order_id", payload.OrderID, "status", payload.Status)
		return nil
	}
	if c.CommissionCalculator == nil {
		logger.Warnw("worker_order_status_changed_skip_calculator_nil", "order_id", payload.OrderID)
		return nil
	}
	err := c.CommissionCalculator.HandleOrderStatusChanged(ctx, payload.OrderID, status)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrNotFound):
		logger.Debugw("worker_order_status_changed_skip_order_not_found", "order_id", payload.OrderID)
		return nil
	case errors.Is(err, service.ErrRuleTargetMissing):
		// 规则配置错误，重试不会改变结果
		logger.Errorw("worker_order_status_changed_rule_invalid", "order_id", payload.OrderID, "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		logger.Warnw("worker_order_status_changed_failed", "order_id", payload.OrderID, "status", status, "error", err)
		return err
	}
}

func (c *Consumer) handleOrderRefunded(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_refunded_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderRefundedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_refunded_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_refunded_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(payload.RefundAmount))
	if err != nil {
		logger.Warnw("worker_order_refunded_invalid_amount", "order_id", payload.OrderID, "refund_amount", payload.RefundAmount)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if c.CommissionCalculator == nil {
		logger.Warnw("worker_order_refunded_skip_calculator_nil", "order_id", payload.OrderID)
		return nil
	}
	affected, err := c.CommissionCalculator.HandleRefund(ctx, payload.OrderID, amount)
	switch {
	case err == nil:
		logger.Debugw("worker_order_refunded_done", "order_id", payload.OrderID, "affected", affected)
		return nil
	case errors.Is(err, service.ErrNotFound):
		logger.Debugw("worker_order_refunded_skip_order_not_found", "order_id", payload.OrderID)
		return nil
	case errors.Is(err, service.ErrRefundAmountInvalid):
		logger.Warnw("worker_order_refunded_invalid_amount", "order_id", payload.OrderID, "refund_amount", payload.RefundAmount)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		logger.Warnw("worker_order_refunded_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
}

// handleVendorPayout 结算任务不重试：转账结果未知的结算单由对账任务收敛
func (c *Consumer) handleVendorPayout(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_vendor_payout_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	ctx = taskContext(ctx, task)
	var payload queue.VendorPayoutPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_vendor_payout_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.VendorID == 0 {
		logger.Debugw("worker_vendor_payout_skip_invalid_payload", "vendor_id", payload.VendorID)
		return nil
	}
	if c.PayoutAggregator == nil {
		logger.Warnw("worker_vendor_payout_skip_aggregator_nil", "vendor_id", payload.VendorID)
		return nil
	}
	result, err := c.PayoutAggregator.ProcessVendorPayout(ctx, payload.VendorID)
	if err != nil {
		logger.Warnw("worker_vendor_payout_failed", "vendor_id", payload.VendorID, "error", err)
		return err
	}
	logger.Infow("worker_vendor_payout_done",
		"vendor_id", payload.VendorID,
		"outcome", result.Outcome,
		"decline_reason", result.DeclineReason,
	)
	return nil
}

func (c *Consumer) handlePayoutBatch(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payout_batch_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	ctx = taskContext(ctx, task)
	var payload queue.PayoutBatchPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_payout_batch_unmarshal_failed", "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
	}
	if c.PayoutAggregator == nil {
		logger.Warnw("worker_payout_batch_skip_aggregator_nil")
		return nil
	}
	result, err := c.PayoutAggregator.ProcessAllScheduledPayouts(ctx)
	if err != nil {
		logger.Warnw("worker_payout_batch_failed", "triggered_by", payload.TriggeredBy, "error", err)
		return err
	}
	logger.Infow("worker_payout_batch_done",
		"triggered_by", payload.TriggeredBy,
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return nil
}

func (c *Consumer) handlePayoutReconcile(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payout_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	ctx = taskContext(ctx, task)
	var payload queue.PayoutReconcilePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_payout_reconcile_unmarshal_failed", "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
	}
	if c.PayoutAggregator == nil {
		logger.Warnw("worker_payout_reconcile_skip_aggregator_nil")
		return nil
	}
	olderThan := c.reconcileAfter(payload.OlderThanMinutes)
	result, err := c.PayoutAggregator.ReconcileProcessingPayouts(ctx, olderThan)
	if err != nil {
		logger.Warnw("worker_payout_reconcile_failed", "error", err)
		return err
	}
	logger.Infow("worker_payout_reconcile_done",
		"older_than", olderThan.String(),
		"checked", result.Checked,
		"completed", result.Completed,
		"failed", result.Failed,
		"unresolved", result.Unresolved,
		"skipped", result.Skipped,
	)
	return nil
}

func (c *Consumer) handleDomainEventRelay(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_event_relay_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var event events.Event
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		logger.Warnw("worker_event_relay_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(event.Name) == "" {
		logger.Debugw("worker_event_relay_skip_invalid_payload", "event_id", event.ID.String())
		return nil
	}
	if c.EventRelay == nil {
		logger.Warnw("worker_event_relay_skip_relay_nil", "event_id", event.ID.String(), "event_name", event.Name)
		return nil
	}
	if err := c.EventRelay.Publish(ctx, event); err != nil {
		logger.Warnw("worker_event_relay_failed", "event_id", event.ID.String(), "event_name", event.Name, "error", err)
		return err
	}
	return nil
}

// taskContext 将任务标识附加到日志上下文
func taskContext(ctx context.Context, task *asynq.Task) context.Context {
	kv := []interface{}{"task_type", task.Type()}
	if id, ok := asynq.GetTaskID(ctx); ok {
		kv = append(kv, "task_id", id)
	}
	if retried, ok := asynq.GetRetryCount(ctx); ok && retried > 0 {
		kv = append(kv, "retry_count", retried)
	}
	return logger.WithFields(ctx, kv...)
}

func (c *Consumer) reconcileAfter(minutes int) time.Duration {
	if minutes <= 0 && c.Config != nil {
		minutes = c.Config.Payout.ReconcileAfterMinutes
	}
	if minutes <= 0 {
		minutes = defaultReconcileAfterMinutes
	}
	return time.Duration(minutes) * time.Minute
}
