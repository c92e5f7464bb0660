package models

import (
	"fmt"
	"time"
)

// VendorPayout 商家结算单
type VendorPayout struct {
	ID                uint       `gorm:"primarykey" json:"id"`                                        // 主键
	VendorID          uint       `gorm:"not null;index" json:"vendor_id"`                             // 商家ID
	Amount            Money      `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`         // 佣金合计（毛额）
	FeeAmount         Money      `gorm:"type:decimal(20,2);not null;default:0" json:"fee_amount"`     // 平台手续费
	NetAmount         Money      `gorm:"type:decimal(20,2);not null;default:0" json:"net_amount"`     // 实际到账金额
	Currency          string     `gorm:"type:varchar(10);not null;default:'USD'" json:"currency"`     // 币种
	Status            string     `gorm:"type:varchar(20);not null;index" json:"status"`               // 结算状态
	Destination       string     `gorm:"type:varchar(255)" json:"destination"`                        // 收款账户
	TransferReference *string    `gorm:"type:varchar(255);index" json:"transfer_reference,omitempty"` // 转账流水号
	ErrorMessage      string     `gorm:"type:text" json:"error_message,omitempty"`                    // 失败原因
	CommissionIDs     UintArray  `gorm:"type:json" json:"commission_ids"`                             // 本次结算的佣金ID
	ProcessedAt       *time.Time `gorm:"index" json:"processed_at,omitempty"`                         // 完成时间
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`                                     // 创建时间
	UpdatedAt         time.Time  `gorm:"index" json:"updated_at"`                                     // 更新时间
}

// TableName 指定表名
func (VendorPayout) TableName() string {
	return "vendor_payouts"
}

// TransferGroup 转账分组标识，用于对账查询
func (p VendorPayout) TransferGroup() string {
	return TransferGroupForPayout(p.ID)
}

// TransferGroupForPayout 生成结算单对应的转账分组
func TransferGroupForPayout(payoutID uint) string {
	return fmt.Sprintf("payout_%d", payoutID)
}
