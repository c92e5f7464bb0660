package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionRuleListFilter 查询佣金规则列表的过滤条件
type CommissionRuleListFilter struct {
	Page     int
	PageSize int
	RuleType string
	TargetID uint
	Status   string
	Search   string
}

// VendorCommissionListFilter 查询佣金列表的过滤条件
type VendorCommissionListFilter struct {
	Page        int
	PageSize    int
	VendorID    uint
	OrderID     uint
	PayoutID    uint
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// VendorPayoutListFilter 查询结算单列表的过滤条件
type VendorPayoutListFilter struct {
	Page        int
	PageSize    int
	VendorID    uint
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// VendorCommissionTotal 商家佣金聚合结果
type VendorCommissionTotal struct {
	VendorID        uint            `gorm:"column:vendor_id"`
	Total           decimal.Decimal `gorm:"column:total"`
	CommissionCount int64           `gorm:"column:commission_count"`
}

// StatusAmountSummary 按状态聚合的数量与金额
type StatusAmountSummary struct {
	Status string          `gorm:"column:status" json:"status"`
	Count  int64           `gorm:"column:total_count" json:"count"`
	Amount decimal.Decimal `gorm:"column:total_amount" json:"amount"`
}

// RuleTypeSummary 按规则类型与状态统计规则数量
type RuleTypeSummary struct {
	RuleType string `gorm:"column:rule_type" json:"type"`
	Status   string `gorm:"column:status" json:"status"`
	Count    int64  `gorm:"column:total_count" json:"count"`
}
