package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
)

// CommissionRuleRepository 佣金规则数据访问接口
type CommissionRuleRepository interface {
	FindActive(ruleType string, targetIDs []uint) ([]models.CommissionRule, error)
	GetByID(id uint) (*models.CommissionRule, error)
	Create(rule *models.CommissionRule) error
	Update(rule *models.CommissionRule) error
	UpdateStatus(id uint, status string, updatedAt time.Time) (int64, error)
	Delete(id uint) error
	List(filter CommissionRuleListFilter) ([]models.CommissionRule, int64, error)
	SummaryByType() ([]RuleTypeSummary, error)
}

// GormCommissionRuleRepository GORM 佣金规则仓储
type GormCommissionRuleRepository struct {
	db *gorm.DB
}

// NewCommissionRuleRepository 创建佣金规则仓储
func NewCommissionRuleRepository(db *gorm.DB) *GormCommissionRuleRepository {
	return &GormCommissionRuleRepository{db: db}
}

// FindActive 按类型与作用对象查询启用中的规则，有效期由调用方判断
func (r *GormCommissionRuleRepository) FindActive(ruleType string, targetIDs []uint) ([]models.CommissionRule, error) {
	ruleType = strings.TrimSpace(ruleType)
	query := r.db.Model(&models.CommissionRule{}).
		Where("rule_type = ? AND status = ?", ruleType, constants.CommissionRuleStatusActive)
	if ruleType != constants.CommissionRuleTypeGlobal {
		if len(targetIDs) == 0 {
			return []models.CommissionRule{}, nil
		}
		query = query.Where("target_id IN ?", targetIDs)
	}
	var rows []models.CommissionRule
	if err := query.Order("priority desc").Order("created_at desc").Order("id desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetByID 按ID获取规则
func (r *GormCommissionRuleRepository) GetByID(id uint) (*models.CommissionRule, error) {
	if id == 0 {
		return nil, nil
	}
	var rule models.CommissionRule
	if err := r.db.First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// Create 创建规则
func (r *GormCommissionRuleRepository) Create(rule *models.CommissionRule) error {
	return r.db.Create(rule).Error
}

// Update 保存规则
func (r *GormCommissionRuleRepository) Update(rule *models.CommissionRule) error {
	return r.db.Save(rule).Error
}

// UpdateStatus 更新规则状态
func (r *GormCommissionRuleRepository) UpdateStatus(id uint, status string, updatedAt time.Time) (int64, error) {
	result := r.db.Model(&models.CommissionRule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Delete 软删除规则
func (r *GormCommissionRuleRepository) Delete(id uint) error {
	return r.db.Delete(&models.CommissionRule{}, id).Error
}

// List 分页查询规则
func (r *GormCommissionRuleRepository) List(filter CommissionRuleListFilter) ([]models.CommissionRule, int64, error) {
	query := r.db.Model(&models.CommissionRule{})
	if ruleType := strings.TrimSpace(filter.RuleType); ruleType != "" {
		query = query.Where("rule_type = ?", ruleType)
	}
	if filter.TargetID != 0 {
		query = query.Where("target_id = ?", filter.TargetID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		condition, argCount := buildLikeCondition(r.db, []string{"name"})
		if argCount > 0 {
			query = query.Where(condition, repeatLikeArgs("%"+search+"%", argCount)...)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.CommissionRule
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// SummaryByType 按类型与状态统计规则数量
func (r *GormCommissionRuleRepository) SummaryByType() ([]RuleTypeSummary, error) {
	var rows []RuleTypeSummary
	if err := r.db.Model(&models.CommissionRule{}).
		Select("rule_type, status, COUNT(*) AS total_count").
		Group("rule_type, status").
		Order("rule_type asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
