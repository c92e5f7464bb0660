package models

import (
	"time"

	"gorm.io/gorm"
)

// Category 商品分类表（宿主平台只读数据）
type Category struct {
	ID        uint           `gorm:"primarykey" json:"id"`             // 主键
	Slug      string         `gorm:"uniqueIndex;not null" json:"slug"` // 唯一标识
	NameJSON  JSON           `gorm:"type:json;not null" json:"name"`   // 多语言名称
	ParentID  *uint          `gorm:"index" json:"parent_id,omitempty"` // 上级分类
	CreatedAt time.Time      `gorm:"index" json:"created_at"`          // 创建时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                   // 软删除时间
}

// TableName 指定表名
func (Category) TableName() string {
	return "categories"
}
