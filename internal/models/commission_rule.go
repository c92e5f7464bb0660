package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionRule 佣金规则表
type CommissionRule struct {
	ID                uint            `gorm:"primarykey" json:"id"`                                                     // 主键
	Name              string          `gorm:"type:varchar(255);not null" json:"name"`                                   // 规则名称
	RuleType          string          `gorm:"type:varchar(20);not null;index:idx_commission_rule_target" json:"type"`   // 规则类型（global/category/vendor/product）
	TargetID          *uint           `gorm:"index:idx_commission_rule_target" json:"target_id,omitempty"`              // 作用对象ID（global 为空）
	CalculationMethod string          `gorm:"type:varchar(20);not null;default:'percentage'" json:"calculation_method"` // 计算方式（percentage/fixed）
	Value             decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"value"`                       // 比例或固定金额
	Priority          int             `gorm:"not null;default:10" json:"priority"`                                      // 同类型内的优先级
	Status            string          `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`           // 状态（active/inactive）
	StartDate         *time.Time      `gorm:"index" json:"start_date,omitempty"`                                        // 生效开始时间
	EndDate           *time.Time      `gorm:"index" json:"end_date,omitempty"`                                          // 生效结束时间
	CreatedBy         uint            `gorm:"index" json:"created_by"`                                                  // 创建人
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`                                                  // 创建时间
	UpdatedAt         time.Time       `json:"updated_at"`                                                               // 更新时间
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`                                                           // 软删除时间
}

// TableName 指定表名
func (CommissionRule) TableName() string {
	return "commission_rules"
}

// ActiveAt 判断规则在指定时间是否处于有效期内
func (r CommissionRule) ActiveAt(now time.Time) bool {
	if r.StartDate != nil && r.StartDate.After(now) {
		return false
	}
	if r.EndDate != nil && r.EndDate.Before(now) {
		return false
	}
	return true
}
