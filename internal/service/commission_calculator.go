package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/events"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"github.com/shopspring/decimal"
)

var (
	hundred             = decimal.NewFromInt(100)
	refundFullThreshold = decimal.RequireFromString(constants.RefundFullThresholdRatio)
	reversibleStatuses  = []string{constants.CommissionStatusPending, constants.CommissionStatusApproved}
)

// AmountAdjuster 佣金金额调整钩子（在取整前调用）
type AmountAdjuster interface {
	AdjustCommission(amount, lineAmount decimal.Decimal, rule ResolvedRule) decimal.Decimal
}

// AmountAdjusterFunc 函数式金额调整
type AmountAdjusterFunc func(amount, lineAmount decimal.Decimal, rule ResolvedRule) decimal.Decimal

// AdjustCommission 调用函数本身
func (f AmountAdjusterFunc) AdjustCommission(amount, lineAmount decimal.Decimal, rule ResolvedRule) decimal.Decimal {
	return f(amount, lineAmount, rule)
}

// CommissionPreview 佣金预览（不落库）
type CommissionPreview struct {
	OrderItemID uint            `json:"order_item_id,omitempty"`
	ProductID   uint            `json:"product_id"`
	VendorID    uint            `json:"vendor_id"`
	LineAmount  models.Money    `json:"line_amount"`
	RuleID      *uint           `json:"rule_id,omitempty"`
	RuleType    string          `json:"rule_type"`
	Method      string          `json:"calculation_method"`
	RuleValue   decimal.Decimal `json:"rule_value"`
	IsDefault   bool            `json:"is_default"`
	Amount      models.Money    `json:"commission_amount"`
	SkipReason  string          `json:"skip_reason,omitempty"`
}

// CommissionCalculator 佣金计算服务
type CommissionCalculator struct {
	repo     repository.VendorCommissionRepository
	catalog  CatalogProvider
	resolver *RuleResolver
	settings CommissionSettingSource
	sink     events.Sink
	adjuster AmountAdjuster
	now      func() time.Time
}

// NewCommissionCalculator 创建佣金计算服务
func NewCommissionCalculator(
	repo repository.VendorCommissionRepository,
	catalog CatalogProvider,
	resolver *RuleResolver,
	settings CommissionSettingSource,
	sink events.Sink,
) *CommissionCalculator {
	return &CommissionCalculator{
		repo:     repo,
		catalog:  catalog,
		resolver: resolver,
		settings: settings,
		sink:     sink,
		now:      time.Now,
	}
}

// WithAmountAdjuster 设置金额调整钩子
func (c *CommissionCalculator) WithAmountAdjuster(adjuster AmountAdjuster) *CommissionCalculator {
	c.adjuster = adjuster
	return c
}

// CalculateAmount 按规则计算订单行佣金并保留 2 位小数，未知计算方式返回 0
func (c *CommissionCalculator) CalculateAmount(lineAmount decimal.Decimal, rule ResolvedRule) decimal.Decimal {
	var amount decimal.Decimal
	switch rule.Method() {
	case constants.CommissionMethodFixed:
		amount = rule.Value()
	case constants.CommissionMethodPercentage:
		amount = lineAmount.Mul(rule.Value()).Div(hundred)
	default:
		logger.Warnw("commission_rule_method_unsupported",
			"rule_id", rule.RuleID(),
			"method", rule.Method(),
		)
		return decimal.Zero
	}
	if c != nil && c.adjuster != nil {
		amount = c.adjuster.AdjustCommission(amount, lineAmount, rule)
	}
	return amount.Round(2)
}

// HandleOrderStatusChanged 订单状态变更入口
func (c *CommissionCalculator) HandleOrderStatusChanged(ctx context.Context, orderID uint, status string) error {
	setting, err := c.settings.GetCommissionSetting()
	if err != nil {
		return err
	}
	switch status {
	case setting.TriggerStatus:
		_, err := c.CalculateOrderCommissions(ctx, orderID)
		return err
	case constants.OrderStatusCanceled:
		_, err := c.HandleCancellation(ctx, orderID)
		return err
	case constants.OrderStatusRefunded:
		order, err := c.loadOrder(orderID)
		if err != nil {
			return err
		}
		_, err = c.HandleRefund(ctx, orderID, order.TotalAmount.Decimal)
		return err
	default:
		logger.Debugw("commission_order_status_ignored", "order_id", orderID, "status", status)
		return nil
	}
}

// CalculateOrderCommissions 为订单创建佣金，已存在佣金的订单直接返回空结果
func (c *CommissionCalculator) CalculateOrderCommissions(ctx context.Context, orderID uint) ([]uint, error) {
	return c.calculate(ctx, orderID, false)
}

// RecalculateOrder 重新计算订单佣金，force 时先删除未结算佣金
func (c *CommissionCalculator) RecalculateOrder(ctx context.Context, orderID uint, force bool) ([]uint, error) {
	if !force {
		return c.calculate(ctx, orderID, false)
	}
	deleted, err := c.repo.DeleteUnpaidByOrder(orderID)
	if err != nil {
		return nil, err
	}
	logger.Infow("commission_order_recalculate", "order_id", orderID, "deleted", deleted)
	return c.calculate(ctx, orderID, true)
}

func (c *CommissionCalculator) calculate(ctx context.Context, orderID uint, skipOrderCheck bool) ([]uint, error) {
	if !skipOrderCheck {
		exists, err := c.repo.ExistsForOrder(orderID)
		if err != nil {
			return nil, err
		}
		if exists {
			logger.Debugw("commission_order_already_calculated", "order_id", orderID)
			return []uint{}, nil
		}
	}
	order, err := c.loadOrder(orderID)
	if err != nil {
		return nil, err
	}

	created := make([]uint, 0, len(order.Items))
	var fatal []error
	for _, item := range order.Items {
		row, err := c.calculateLine(ctx, order, item)
		if err != nil {
			if errors.Is(err, ErrRuleTargetMissing) {
				fatal = append(fatal, err)
			}
			logger.Errorw("commission_line_failed",
				"order_id", order.ID,
				"order_item_id", item.ID,
				"error", err,
			)
			continue
		}
		if row == nil {
			continue
		}
		created = append(created, row.ID)
		events.Emit(ctx, c.sink, constants.EventCommissionCreated, commissionPayload(row))
	}

	if len(created) > 0 {
		events.Emit(ctx, c.sink, constants.EventCommissionsCalculated, map[string]interface{}{
			"order_id":       order.ID,
			"commission_ids": created,
			"count":          len(created),
		})
	}
	logger.Infow("commission_order_calculated",
		"order_id", order.ID,
		"created", len(created),
		"items", len(order.Items),
	)
	return created, errors.Join(fatal...)
}

// calculateLine 返回 nil, nil 表示该行被跳过
func (c *CommissionCalculator) calculateLine(ctx context.Context, order *models.Order, item models.OrderItem) (*models.VendorCommission, error) {
	if item.ItemType != constants.OrderItemTypeProduct {
		return nil, nil
	}
	vendorID, err := c.catalog.GetProductOwner(item.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load product owner: %w", err)
	}
	if vendorID == nil || *vendorID == 0 {
		logger.Warnw("commission_line_skipped",
			"order_id", order.ID,
			"order_item_id", item.ID,
			"product_id", item.ProductID,
			"reason", "vendor_missing",
		)
		return nil, nil
	}
	exists, err := c.repo.ExistsForOrderItem(order.ID, item.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		logger.Debugw("commission_line_skipped",
			"order_id", order.ID,
			"order_item_id", item.ID,
			"reason", "already_exists",
		)
		return nil, nil
	}
	categoryIDs, err := c.catalog.GetProductCategories(item.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load product categories: %w", err)
	}
	rule, err := c.resolver.Resolve(ctx, item.ProductID, *vendorID, categoryIDs)
	if err != nil {
		return nil, err
	}

	lineAmount := item.TotalPrice.Decimal
	amount := c.CalculateAmount(lineAmount, rule)
	if !amount.IsPositive() {
		logger.Debugw("commission_line_skipped",
			"order_id", order.ID,
			"order_item_id", item.ID,
			"reason", "non_positive_amount",
		)
		return nil, nil
	}

	row := &models.VendorCommission{
		OrderID:          order.ID,
		OrderItemID:      item.ID,
		ProductID:        item.ProductID,
		VendorID:         *vendorID,
		RuleID:           rule.RuleID(),
		OrderTotal:       models.NewMoneyFromDecimal(lineAmount),
		CommissionAmount: models.NewMoneyFromDecimal(amount),
		Status:           constants.CommissionStatusPending,
	}
	if !rule.IsDefault() {
		row.CommissionRate = decimal.NewNullDecimal(rule.Value())
	}
	if err := c.repo.Create(row); err != nil {
		if isUniqueViolation(err) {
			logger.Infow("commission_line_skipped",
				"order_id", order.ID,
				"order_item_id", item.ID,
				"reason", "concurrent_insert",
			)
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

// HandleRefund 退款金额达到订单金额 90% 时整单冲正佣金，返回受影响条数
func (c *CommissionCalculator) HandleRefund(ctx context.Context, orderID uint, refundAmount decimal.Decimal) (int64, error) {
	if refundAmount.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrRefundAmountInvalid, refundAmount.String())
	}
	order, err := c.loadOrder(orderID)
	if err != nil {
		return 0, err
	}
	threshold := order.TotalAmount.Decimal.Mul(refundFullThreshold)
	if refundAmount.LessThan(threshold) {
		logger.Infow("commission_refund_partial_ignored",
			"order_id", orderID,
			"refund_amount", refundAmount.String(),
			"order_total", order.TotalAmount.String(),
		)
		return 0, nil
	}
	return c.reverseOrder(ctx, orderID, constants.CommissionStatusRefunded)
}

// HandleCancellation 订单取消时作废未结算佣金，返回受影响条数
func (c *CommissionCalculator) HandleCancellation(ctx context.Context, orderID uint) (int64, error) {
	return c.reverseOrder(ctx, orderID, constants.CommissionStatusCancelled)
}

func (c *CommissionCalculator) reverseOrder(ctx context.Context, orderID uint, target string) (int64, error) {
	claimed, err := c.repo.ListByOrder(orderID, reversibleStatuses)
	if err != nil {
		return 0, err
	}
	for _, row := range claimed {
		if row.PayoutID != nil {
			logger.Warnw("commission_reverse_skipped",
				"order_id", orderID,
				"commission_id", row.ID,
				"payout_id", *row.PayoutID,
				"reason", "claimed_by_payout",
			)
		}
	}

	affected, err := c.repo.TransitionOrderStatus(orderID, reversibleStatuses, target, c.now())
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		events.Emit(ctx, c.sink, constants.EventCommissionStatusChanged, map[string]interface{}{
			"order_id": orderID,
			"status":   target,
			"count":    affected,
		})
	}
	logger.Infow("commission_order_reversed", "order_id", orderID, "status", target, "affected", affected)
	return affected, nil
}

// PreviewOrderCommissions 预览订单佣金（不落库）
func (c *CommissionCalculator) PreviewOrderCommissions(ctx context.Context, orderID uint) ([]CommissionPreview, error) {
	order, err := c.loadOrder(orderID)
	if err != nil {
		return nil, err
	}
	previews := make([]CommissionPreview, 0, len(order.Items))
	for _, item := range order.Items {
		if item.ItemType != constants.OrderItemTypeProduct {
			continue
		}
		preview, err := c.PreviewProduct(ctx, item.ProductID, item.TotalPrice.Decimal)
		if err != nil {
			return nil, err
		}
		preview.OrderItemID = item.ID
		previews = append(previews, *preview)
	}
	return previews, nil
}

// PreviewProduct 预览商品在指定金额下的佣金
func (c *CommissionCalculator) PreviewProduct(ctx context.Context, productID uint, amount decimal.Decimal) (*CommissionPreview, error) {
	preview := &CommissionPreview{
		ProductID:  productID,
		LineAmount: models.NewMoneyFromDecimal(amount),
	}
	vendorID, err := c.catalog.GetProductOwner(productID)
	if err != nil {
		return nil, err
	}
	if vendorID == nil || *vendorID == 0 {
		preview.SkipReason = "vendor_missing"
		return preview, nil
	}
	preview.VendorID = *vendorID
	categoryIDs, err := c.catalog.GetProductCategories(productID)
	if err != nil {
		return nil, err
	}
	rule, err := c.resolver.Resolve(ctx, productID, *vendorID, categoryIDs)
	if err != nil {
		return nil, err
	}
	preview.RuleID = rule.RuleID()
	preview.RuleType = rule.Type()
	preview.Method = rule.Method()
	preview.RuleValue = rule.Value()
	preview.IsDefault = rule.IsDefault()
	preview.Amount = models.NewMoneyFromDecimal(c.CalculateAmount(amount, rule))
	if !preview.Amount.IsPositive() {
		preview.SkipReason = "non_positive_amount"
	}
	return preview, nil
}

func (c *CommissionCalculator) loadOrder(orderID uint) (*models.Order, error) {
	if orderID == 0 {
		return nil, ErrNotFound
	}
	order, err := c.catalog.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	return order, nil
}

func commissionPayload(row *models.VendorCommission) map[string]interface{} {
	return map[string]interface{}{
		"commission_id":     row.ID,
		"order_id":          row.OrderID,
		"order_item_id":     row.OrderItemID,
		"vendor_id":         row.VendorID,
		"rule_id":           row.RuleID,
		"commission_amount": row.CommissionAmount.String(),
		"status":            row.Status,
	}
}
