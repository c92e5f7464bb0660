package constants

// 订单状态常量（宿主平台）
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPaid           = "paid"
	OrderStatusProcessing     = "processing"
	OrderStatusCompleted      = "completed"
	OrderStatusCanceled       = "canceled"
	OrderStatusRefunded       = "refunded"
)

// 订单项类型常量
const (
	OrderItemTypeProduct  = "product"
	OrderItemTypeShipping = "shipping"
	OrderItemTypeFee      = "fee"
)

// 佣金规则类型常量
const (
	CommissionRuleTypeGlobal   = "global"
	CommissionRuleTypeCategory = "category"
	CommissionRuleTypeVendor   = "vendor"
	CommissionRuleTypeProduct  = "product"
)

// 佣金计算方式常量
const (
	CommissionMethodPercentage = "percentage"
	CommissionMethodFixed      = "fixed"
)

// 佣金规则状态常量
const (
	CommissionRuleStatusActive   = "active"
	CommissionRuleStatusInactive = "inactive"
)

// 佣金状态常量
const (
	CommissionStatusPending   = "pending"
	CommissionStatusApproved  = "approved"
	CommissionStatusPaid      = "paid"
	CommissionStatusCancelled = "cancelled"
	CommissionStatusRefunded  = "refunded"
)

// 结算单状态常量
const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
)

// 手续费承担方常量
const (
	FeeHandlingPlatform = "platform"
	FeeHandlingVendor   = "vendor"
)

// 收款账户常量
const (
	VendorAccountStatusConnected    = "connected"
	VendorAccountStatusDisconnected = "disconnected"
	TransferProviderStripe          = "stripe"
	TransferProviderDisabled        = "disabled"
)

// 领域事件名称
const (
	EventCommissionCreated       = "commission.created"
	EventCommissionsCalculated   = "commissions.calculated"
	EventCommissionStatusChanged = "commission.status_changed"
	EventCommissionBulkApproved  = "commission.bulk_approved"
	EventRuleCreated             = "rule.created"
	EventRuleUpdated             = "rule.updated"
	EventRuleDeleted             = "rule.deleted"
	EventPayoutCompleted         = "payout.completed"
	EventPayoutFailed            = "payout.failed"
	EventPayoutBatchProcessed    = "payout.processed"
)

// 事件投递方式
const (
	EventSinkLog      = "log"
	EventSinkQueue    = "queue"
	EventRelayLog     = "log"
	EventRelayKafka   = "kafka"
	EventRelayRabbit  = "rabbitmq"
	EventRelayDisable = "none"
)

// 异步任务常量
const (
	QueueDefault             = "default"
	QueueCritical            = "critical"
	TaskOrderStatusChanged   = "commission:order_status_changed"
	TaskOrderRefunded        = "commission:order_refunded"
	TaskVendorPayout         = "payout:vendor"
	TaskPayoutBatch          = "payout:batch"
	TaskPayoutReconcile      = "payout:reconcile"
	TaskDomainEventRelay     = "event:relay"
	RefundFullThresholdRatio = "0.9"
)

// 结算结果
const (
	PayoutOutcomeProcessed = "processed"
	PayoutOutcomeDeclined  = "declined"
	PayoutOutcomeFailed    = "failed"
	PayoutOutcomePending   = "pending"
)

// 设置键常量
const (
	SettingKeyCommissionConfig = "commission_config"
)

// 结算拒绝原因
const (
	PayoutDeclineNoCommissions = "no_approved_commissions"
	PayoutDeclineBelowMinimum  = "below_minimum_payout"
	PayoutDeclineNotConnected  = "destination_not_connected"
	PayoutDeclineInProgress    = "payout_in_progress"
	PayoutDeclineClaimConflict = "commission_claim_conflict"
)
