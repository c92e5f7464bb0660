package repository

import (
	"errors"

	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
)

// CatalogRepository 宿主平台商品与订单的只读访问接口
type CatalogRepository interface {
	GetOrder(orderID uint) (*models.Order, error)
	GetProduct(productID uint) (*models.Product, error)
	GetProductOwner(productID uint) (*uint, error)
	GetProductCategories(productID uint) ([]uint, error)
}

// GormCatalogRepository GORM 目录仓储
type GormCatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository 创建目录仓储
func NewCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

// GetOrder 获取订单及订单项
func (r *GormCatalogRepository) GetOrder(orderID uint) (*models.Order, error) {
	if orderID == 0 {
		return nil, nil
	}
	var order models.Order
	if err := r.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_items.id asc")
	}).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetProduct 获取商品（含附加分类）
func (r *GormCatalogRepository) GetProduct(productID uint) (*models.Product, error) {
	if productID == 0 {
		return nil, nil
	}
	var product models.Product
	if err := r.db.Preload("Categories").First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// GetProductOwner 获取商品所属商家，无法确定时返回 nil
func (r *GormCatalogRepository) GetProductOwner(productID uint) (*uint, error) {
	product, err := r.findProductRow(productID)
	if err != nil || product == nil {
		return nil, err
	}
	if product.VendorID == nil || *product.VendorID == 0 {
		return nil, nil
	}
	owner := *product.VendorID
	return &owner, nil
}

// GetProductCategories 获取商品的全部分类ID（主分类 + 附加分类，去重）
func (r *GormCatalogRepository) GetProductCategories(productID uint) ([]uint, error) {
	product, err := r.findProductRow(productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return []uint{}, nil
	}
	var extra []uint
	if err := r.db.Table("product_categories").
		Where("product_id = ?", productID).
		Pluck("category_id", &extra).Error; err != nil {
		return nil, err
	}

	result := make([]uint, 0, len(extra)+1)
	seen := make(map[uint]struct{}, len(extra)+1)
	if product.CategoryID != 0 {
		result = append(result, product.CategoryID)
		seen[product.CategoryID] = struct{}{}
	}
	for _, id := range extra {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result, nil
}

func (r *GormCatalogRepository) findProductRow(productID uint) (*models.Product, error) {
	if productID == 0 {
		return nil, nil
	}
	var product models.Product
	if err := r.db.Select("id", "vendor_id", "category_id").First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}
