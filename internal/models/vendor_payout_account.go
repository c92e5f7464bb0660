package models

import "time"

// VendorPayoutAccount 商家收款账户
type VendorPayoutAccount struct {
	ID             uint       `gorm:"primarykey" json:"id"`                                       // 主键
	VendorID       uint       `gorm:"not null;uniqueIndex" json:"vendor_id"`                      // 商家ID
	Provider       string     `gorm:"type:varchar(32);not null;default:'stripe'" json:"provider"` // 转账渠道
	AccountID      string     `gorm:"type:varchar(255);not null" json:"account_id"`               // 渠道侧账户ID
	Status         string     `gorm:"type:varchar(20);not null;index" json:"status"`              // 连接状态
	PayoutsEnabled bool       `gorm:"not null;default:false" json:"payouts_enabled"`              // 渠道侧是否允许收款
	ConnectedAt    *time.Time `json:"connected_at,omitempty"`                                     // 连接时间
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`                                    // 创建时间
	UpdatedAt      time.Time  `json:"updated_at"`                                                 // 更新时间
}

// TableName 指定表名
func (VendorPayoutAccount) TableName() string {
	return "vendor_payout_accounts"
}
