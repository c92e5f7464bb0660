package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/events"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"github.com/shopspring/decimal"
)

const ruleNameMaxRune = 255

// CommissionRuleInput 创建/更新规则输入
type CommissionRuleInput struct {
	Name              string
	RuleType          string
	TargetID          *uint
	CalculationMethod string
	Value             decimal.Decimal
	Priority          int
	Status            string
	StartDate         *time.Time
	EndDate           *time.Time
	CreatedBy         uint
}

// RuleSummary 规则统计
type RuleSummary struct {
	Total    int64                        `json:"total"`
	Active   int64                        `json:"active"`
	Inactive int64                        `json:"inactive"`
	ByType   map[string]int64             `json:"by_type"`
	Rows     []repository.RuleTypeSummary `json:"rows"`
}

// RuleService 佣金规则管理服务
type RuleService struct {
	repo repository.CommissionRuleRepository
	sink events.Sink
	now  func() time.Time
}

// NewRuleService 创建规则管理服务
func NewRuleService(repo repository.CommissionRuleRepository, sink events.Sink) *RuleService {
	return &RuleService{repo: repo, sink: sink, now: time.Now}
}

// Create 创建规则
func (s *RuleService) Create(ctx context.Context, input CommissionRuleInput) (*models.CommissionRule, error) {
	rule := &models.CommissionRule{}
	if err := applyRuleInput(rule, input); err != nil {
		return nil, err
	}
	rule.CreatedBy = input.CreatedBy
	if err := s.repo.Create(rule); err != nil {
		return nil, err
	}
	events.Emit(ctx, s.sink, constants.EventRuleCreated, rulePayload(rule))
	return rule, nil
}

// Update 更新规则
func (s *RuleService) Update(ctx context.Context, id uint, input CommissionRuleInput) (*models.CommissionRule, error) {
	rule, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if err := applyRuleInput(rule, input); err != nil {
		return nil, err
	}
	if err := s.repo.Update(rule); err != nil {
		return nil, err
	}
	events.Emit(ctx, s.sink, constants.EventRuleUpdated, rulePayload(rule))
	return rule, nil
}

// SetStatus 启用/停用规则
func (s *RuleService) SetStatus(ctx context.Context, id uint, status string) (*models.CommissionRule, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != constants.CommissionRuleStatusActive && status != constants.CommissionRuleStatusInactive {
		return nil, fmt.Errorf("%w: 状态只能是 active 或 inactive", ErrRuleInvalid)
	}
	affected, err := s.repo.UpdateStatus(id, status, s.now())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	rule, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	events.Emit(ctx, s.sink, constants.EventRuleUpdated, rulePayload(rule))
	return rule, nil
}

// ToggleStatus 切换规则状态
func (s *RuleService) ToggleStatus(ctx context.Context, id uint) (*models.CommissionRule, error) {
	rule, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	next := constants.CommissionRuleStatusActive
	if rule.Status == constants.CommissionRuleStatusActive {
		next = constants.CommissionRuleStatusInactive
	}
	return s.SetStatus(ctx, id, next)
}

// Delete 删除规则（软删除，历史佣金保留 rule_id）
func (s *RuleService) Delete(ctx context.Context, id uint) error {
	rule, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(id); err != nil {
		return err
	}
	events.Emit(ctx, s.sink, constants.EventRuleDeleted, rulePayload(rule))
	return nil
}

// Get 获取规则
func (s *RuleService) Get(id uint) (*models.CommissionRule, error) {
	if id == 0 {
		return nil, ErrNotFound
	}
	rule, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ErrNotFound
	}
	return rule, nil
}

// List 分页查询规则
func (s *RuleService) List(filter repository.CommissionRuleListFilter) ([]models.CommissionRule, int64, error) {
	filter.RuleType = strings.ToLower(strings.TrimSpace(filter.RuleType))
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	return s.repo.List(filter)
}

// Summary 规则统计
func (s *RuleService) Summary() (*RuleSummary, error) {
	rows, err := s.repo.SummaryByType()
	if err != nil {
		return nil, err
	}
	summary := &RuleSummary{ByType: map[string]int64{}, Rows: rows}
	for _, row := range rows {
		summary.Total += row.Count
		summary.ByType[row.RuleType] += row.Count
		switch row.Status {
		case constants.CommissionRuleStatusActive:
			summary.Active += row.Count
		case constants.CommissionRuleStatusInactive:
			summary.Inactive += row.Count
		}
	}
	return summary, nil
}

func applyRuleInput(rule *models.CommissionRule, input CommissionRuleInput) error {
	ruleType := strings.ToLower(strings.TrimSpace(input.RuleType))
	if _, ok := ruleTypeWeights[ruleType]; !ok {
		return fmt.Errorf("%w: 不支持的规则类型 %q", ErrRuleInvalid, input.RuleType)
	}
	targetID := input.TargetID
	if ruleType == constants.CommissionRuleTypeGlobal {
		targetID = nil
	} else if targetID == nil || *targetID == 0 {
		return fmt.Errorf("%w: %s 规则必须指定 target_id", ErrRuleInvalid, ruleType)
	}

	method := strings.ToLower(strings.TrimSpace(input.CalculationMethod))
	if method == "" {
		method = constants.CommissionMethodPercentage
	}
	switch method {
	case constants.CommissionMethodPercentage:
		if input.Value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: 比例不能超过 100", ErrRuleInvalid)
		}
	case constants.CommissionMethodFixed:
	default:
		return fmt.Errorf("%w: 不支持的计算方式 %q", ErrRuleInvalid, input.CalculationMethod)
	}
	if input.Value.IsNegative() {
		return fmt.Errorf("%w: 佣金取值不能为负数", ErrRuleInvalid)
	}

	status := strings.ToLower(strings.TrimSpace(input.Status))
	if status == "" {
		status = constants.CommissionRuleStatusActive
	}
	if status != constants.CommissionRuleStatusActive && status != constants.CommissionRuleStatusInactive {
		return fmt.Errorf("%w: 状态只能是 active 或 inactive", ErrRuleInvalid)
	}
	if input.StartDate != nil && input.EndDate != nil && input.EndDate.Before(*input.StartDate) {
		return fmt.Errorf("%w: 结束时间不能早于开始时间", ErrRuleInvalid)
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = defaultRuleName(ruleType, targetID)
	}
	if runes := []rune(name); len(runes) > ruleNameMaxRune {
		name = string(runes[:ruleNameMaxRune])
	}

	rule.Name = name
	rule.RuleType = ruleType
	rule.TargetID = targetID
	rule.CalculationMethod = method
	rule.Value = input.Value.Round(4)
	rule.Priority = clampRulePriority(input.Priority)
	rule.Status = status
	rule.StartDate = input.StartDate
	rule.EndDate = input.EndDate
	return nil
}

func defaultRuleName(ruleType string, targetID *uint) string {
	if targetID == nil {
		return ruleType + " rule"
	}
	return fmt.Sprintf("%s #%d rule", ruleType, *targetID)
}

func rulePayload(rule *models.CommissionRule) map[string]interface{} {
	return map[string]interface{}{
		"rule_id":            rule.ID,
		"type":               rule.RuleType,
		"target_id":          rule.TargetID,
		"calculation_method": rule.CalculationMethod,
		"value":              rule.Value.String(),
		"priority":           rule.Priority,
		"status":             rule.Status,
	}
}

func clampRulePriority(priority int) int {
	if priority < rulePriorityMin {
		return rulePriorityMin
	}
	if priority > rulePriorityMax {
		return rulePriorityMax
	}
	return priority
}
