package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VendorCommission 商家佣金记录（每个订单行至多一条）
type VendorCommission struct {
	ID               uint                `gorm:"primarykey" json:"id"`                                                              // 主键
	OrderID          uint                `gorm:"not null;index;uniqueIndex:idx_vendor_commission_line" json:"order_id"`             // 订单ID
	OrderItemID      uint                `gorm:"not null;uniqueIndex:idx_vendor_commission_line" json:"order_item_id"`              // 订单项ID
	ProductID        uint                `gorm:"not null;index" json:"product_id"`                                                  // 商品ID
	VendorID         uint                `gorm:"not null;index:idx_vendor_commission_vendor_status" json:"vendor_id"`               // 商家ID
	RuleID           *uint               `gorm:"index" json:"rule_id,omitempty"`                                                    // 命中规则ID（默认规则为空）
	OrderTotal       Money               `gorm:"type:decimal(20,2);not null;default:0" json:"order_total"`                          // 订单行金额
	CommissionAmount Money               `gorm:"type:decimal(20,2);not null;default:0" json:"commission_amount"`                    // 佣金金额
	CommissionRate   decimal.NullDecimal `gorm:"type:decimal(10,4)" json:"commission_rate"`                                         // 规则取值快照（默认规则为空）
	Status           string              `gorm:"type:varchar(20);not null;index:idx_vendor_commission_vendor_status" json:"status"` // 佣金状态
	PayoutID         *uint               `gorm:"index" json:"payout_id,omitempty"`                                                  // 关联结算单
	CreatedAt        time.Time           `gorm:"index" json:"created_at"`                                                           // 创建时间
	UpdatedAt        time.Time           `gorm:"index" json:"updated_at"`                                                           // 更新时间

	Payout *VendorPayout `gorm:"foreignKey:PayoutID" json:"payout,omitempty"` // 结算单
}

// TableName 指定表名
func (VendorCommission) TableName() string {
	return "vendor_commissions"
}
