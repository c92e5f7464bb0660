package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderItem 订单项表（宿主平台只读数据）
type OrderItem struct {
	ID         uint           `gorm:"primarykey" json:"id"`                                         // 主键
	OrderID    uint           `gorm:"index;not null" json:"order_id"`                               // 订单ID
	ProductID  uint           `gorm:"index" json:"product_id"`                                      // 商品ID（运费等非商品行为 0）
	ItemType   string         `gorm:"type:varchar(20);not null;default:'product'" json:"item_type"` // 行类型（product/shipping/fee）
	TitleJSON  JSON           `gorm:"type:json" json:"title"`                                       // 商品标题快照
	UnitPrice  Money          `gorm:"type:decimal(20,2);not null;default:0" json:"unit_price"`      // 单价
	Quantity   int            `gorm:"not null;default:1" json:"quantity"`                           // 数量
	TotalPrice Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_price"`     // 小计（实收金额）
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`                                      // 创建时间
	UpdatedAt  time.Time      `gorm:"index" json:"updated_at"`                                      // 更新时间
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`                                               // 软删除时间
}

// TableName 指定表名
func (OrderItem) TableName() string {
	return "order_items"
}
