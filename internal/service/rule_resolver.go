package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"

	"github.com/shopspring/decimal"
)

// 规则类型权重，类型优先级始终高于同类型内的 priority
var ruleTypeWeights = map[string]int{
	constants.CommissionRuleTypeGlobal:   1,
	constants.CommissionRuleTypeCategory: 2,
	constants.CommissionRuleTypeVendor:   3,
	constants.CommissionRuleTypeProduct:  4,
}

const (
	ruleTypeWeightFactor = 1000
	rulePriorityMin      = 0
	rulePriorityMax      = ruleTypeWeightFactor - 1
)

// RuleStore 规则只读数据源
type RuleStore interface {
	FindActive(ruleType string, targetIDs []uint) ([]models.CommissionRule, error)
}

// CatalogProvider 宿主平台目录只读数据源
type CatalogProvider interface {
	GetOrder(orderID uint) (*models.Order, error)
	GetProductOwner(productID uint) (*uint, error)
	GetProductCategories(productID uint) ([]uint, error)
}

// ResolvedRule 规则匹配结果：已配置规则或默认规则
type ResolvedRule struct {
	rule        *models.CommissionRule
	defaultRate decimal.Decimal
}

// NewResolvedRule 包装已配置规则
func NewResolvedRule(rule models.CommissionRule) ResolvedRule {
	return ResolvedRule{rule: &rule}
}

// DefaultResolvedRule 默认规则（global + percentage，无规则ID）
func DefaultResolvedRule(rate decimal.Decimal) ResolvedRule {
	return ResolvedRule{defaultRate: rate}
}

// IsDefault 是否为默认规则
func (r ResolvedRule) IsDefault() bool {
	return r.rule == nil
}

// Rule 返回已配置规则，默认规则返回 nil
func (r ResolvedRule) Rule() *models.CommissionRule {
	return r.rule
}

// RuleID 规则ID，默认规则返回 nil
func (r ResolvedRule) RuleID() *uint {
	if r.rule == nil {
		return nil
	}
	id := r.rule.ID
	return &id
}

// Type 规则类型
func (r ResolvedRule) Type() string {
	if r.rule == nil {
		return constants.CommissionRuleTypeGlobal
	}
	return r.rule.RuleType
}

// Method 计算方式
func (r ResolvedRule) Method() string {
	if r.rule == nil {
		return constants.CommissionMethodPercentage
	}
	return r.rule.CalculationMethod
}

// Value 比例或固定金额
func (r ResolvedRule) Value() decimal.Decimal {
	if r.rule == nil {
		return r.defaultRate
	}
	return r.rule.Value
}

// Priority 同类型内优先级
func (r ResolvedRule) Priority() int {
	if r.rule == nil {
		return 0
	}
	return r.rule.Priority
}

// Name 规则名称
func (r ResolvedRule) Name() string {
	if r.rule == nil {
		return "default"
	}
	return r.rule.Name
}

// EffectivePriority 类型权重 × 1000 + 优先级
func (r ResolvedRule) EffectivePriority() int {
	return effectiveRulePriority(r.Type(), r.Priority())
}

// RuleResolver 佣金规则匹配
type RuleResolver struct {
	store    RuleStore
	settings CommissionSettingSource
	now      func() time.Time
}

// NewRuleResolver 创建规则匹配器
func NewRuleResolver(store RuleStore, settings CommissionSettingSource) *RuleResolver {
	return &RuleResolver{store: store, settings: settings, now: time.Now}
}

// Resolve 为商品/商家/分类组合选择唯一生效的规则，vendorID 为 0 表示商家未知
func (r *RuleResolver) Resolve(ctx context.Context, productID, vendorID uint, categoryIDs []uint) (ResolvedRule, error) {
	candidates, err := r.collectCandidates(productID, vendorID, categoryIDs)
	if err != nil {
		return ResolvedRule{}, err
	}

	now := r.now()
	var best *models.CommissionRule
	for i := range candidates {
		rule := &candidates[i]
		if rule.RuleType != constants.CommissionRuleTypeGlobal && rule.TargetID == nil {
			return ResolvedRule{}, fmt.Errorf("%w: rule %d type %s", ErrRuleTargetMissing, rule.ID, rule.RuleType)
		}
		if rule.Status != constants.CommissionRuleStatusActive || !rule.ActiveAt(now) {
			continue
		}
		if rule.Priority < rulePriorityMin || rule.Priority > rulePriorityMax {
			logger.Warnw("commission_rule_priority_out_of_range",
				"rule_id", rule.ID,
				"rule_type", rule.RuleType,
				"priority", rule.Priority,
			)
			continue
		}
		if best == nil || ruleOutranks(rule, best) {
			best = rule
		}
	}

	if best == nil {
		setting, err := r.settings.GetCommissionSetting()
		if err != nil {
			return ResolvedRule{}, err
		}
		resolved := DefaultResolvedRule(setting.DefaultRateDecimal())
		logger.Debugw("commission_rule_resolved",
			"product_id", productID,
			"vendor_id", vendorID,
			"rule", "default",
			"value", resolved.Value().String(),
		)
		return resolved, nil
	}

	resolved := NewResolvedRule(*best)
	logger.Debugw("commission_rule_resolved",
		"product_id", productID,
		"vendor_id", vendorID,
		"rule_id", best.ID,
		"rule_type", best.RuleType,
		"effective_priority", resolved.EffectivePriority(),
	)
	return resolved, nil
}

func (r *RuleResolver) collectCandidates(productID, vendorID uint, categoryIDs []uint) ([]models.CommissionRule, error) {
	var candidates []models.CommissionRule
	appendRules := func(ruleType string, targets []uint) error {
		rows, err := r.store.FindActive(ruleType, targets)
		if err != nil {
			return fmt.Errorf("find %s rules: %w", ruleType, err)
		}
		candidates = append(candidates, rows...)
		return nil
	}

	if productID != 0 {
		if err := appendRules(constants.CommissionRuleTypeProduct, []uint{productID}); err != nil {
			return nil, err
		}
	}
	if vendorID != 0 {
		if err := appendRules(constants.CommissionRuleTypeVendor, []uint{vendorID}); err != nil {
			return nil, err
		}
	}
	if len(categoryIDs) > 0 {
		if err := appendRules(constants.CommissionRuleTypeCategory, categoryIDs); err != nil {
			return nil, err
		}
	}
	if err := appendRules(constants.CommissionRuleTypeGlobal, nil); err != nil {
		return nil, err
	}
	return candidates, nil
}

// ruleOutranks 比较有效优先级，相同时取较新创建的规则，再相同取较大ID
func ruleOutranks(a, b *models.CommissionRule) bool {
	pa := effectiveRulePriority(a.RuleType, a.Priority)
	pb := effectiveRulePriority(b.RuleType, b.Priority)
	if pa != pb {
		return pa > pb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func effectiveRulePriority(ruleType string, priority int) int {
	return ruleTypeWeights[ruleType]*ruleTypeWeightFactor + priority
}
