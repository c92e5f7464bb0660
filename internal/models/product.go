package models

import (
	"time"

	"gorm.io/gorm"
)

// Product 商品表（宿主平台只读数据）
type Product struct {
	ID          uint           `gorm:"primarykey" json:"id"`                                      // 主键
	VendorID    *uint          `gorm:"index" json:"vendor_id,omitempty"`                          // 所属商家（为空表示平台自营）
	CategoryID  uint           `gorm:"index" json:"category_id"`                                  // 主分类ID
	Slug        string         `gorm:"uniqueIndex;not null" json:"slug"`                          // 唯一标识
	TitleJSON   JSON           `gorm:"type:json;not null" json:"title"`                           // 多语言标题
	PriceAmount Money          `gorm:"type:decimal(20,2);not null;default:0" json:"price_amount"` // 价格金额
	IsActive    bool           `gorm:"default:true;index" json:"is_active"`                       // 是否上架
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt   time.Time      `json:"updated_at"`                                                // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                            // 软删除时间

	Categories []Category `gorm:"many2many:product_categories" json:"categories,omitempty"` // 附加分类
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}
