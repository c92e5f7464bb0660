package queue

import (
	"encoding/json"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/events"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderStatusChanged 订单状态变更（触发佣金计算或取消）
	TaskOrderStatusChanged = constants.TaskOrderStatusChanged
	// TaskOrderRefunded 订单退款
	TaskOrderRefunded = constants.TaskOrderRefunded
	// TaskVendorPayout 单个商家结算
	TaskVendorPayout = constants.TaskVendorPayout
	// TaskPayoutBatch 批量结算
	TaskPayoutBatch = constants.TaskPayoutBatch
	// TaskPayoutReconcile 处理中结算单对账
	TaskPayoutReconcile = constants.TaskPayoutReconcile
	// TaskDomainEventRelay 领域事件转发
	TaskDomainEventRelay = constants.TaskDomainEventRelay
)

// OrderStatusChangedPayload 订单状态变更任务载荷
type OrderStatusChangedPayload struct {
	OrderID uint   `json:"order_id"`
	Status  string `json:"status"`
}

// OrderRefundedPayload 订单退款任务载荷
type OrderRefundedPayload struct {
	OrderID      uint   `json:"order_id"`
	RefundAmount string `json:"refund_amount"`
}

// VendorPayoutPayload 商家结算任务载荷
type VendorPayoutPayload struct {
	VendorID uint `json:"vendor_id"`
}

// PayoutBatchPayload 批量结算任务载荷
type PayoutBatchPayload struct {
	TriggeredBy string `json:"triggered_by"`
}

// PayoutReconcilePayload 对账任务载荷
type PayoutReconcilePayload struct {
	OlderThanMinutes int `json:"older_than_minutes"`
}

// NewOrderStatusChangedTask 创建订单状态变更任务
func NewOrderStatusChangedTask(payload OrderStatusChangedPayload) (*asynq.Task, error) {
	return newJSONTask(TaskOrderStatusChanged, payload)
}

// NewOrderRefundedTask 创建订单退款任务
func NewOrderRefundedTask(payload OrderRefundedPayload) (*asynq.Task, error) {
	return newJSONTask(TaskOrderRefunded, payload)
}

// NewVendorPayoutTask 创建商家结算任务
func NewVendorPayoutTask(payload VendorPayoutPayload) (*asynq.Task, error) {
	return newJSONTask(TaskVendorPayout, payload)
}

// NewPayoutBatchTask 创建批量结算任务
func NewPayoutBatchTask(payload PayoutBatchPayload) (*asynq.Task, error) {
	return newJSONTask(TaskPayoutBatch, payload)
}

// NewPayoutReconcileTask 创建对账任务
func NewPayoutReconcileTask(payload PayoutReconcilePayload) (*asynq.Task, error) {
	return newJSONTask(TaskPayoutReconcile, payload)
}

// NewDomainEventRelayTask 创建事件转发任务
func NewDomainEventRelayTask(event events.Event) (*asynq.Task, error) {
	return newJSONTask(TaskDomainEventRelay, event)
}

func newJSONTask(taskType string, payload interface{}) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body), nil
}
