package repository

import (
	"errors"
	"time"

	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VendorAccountRepository 商家收款账户数据访问接口
type VendorAccountRepository interface {
	GetByVendor(vendorID uint) (*models.VendorPayoutAccount, error)
	Upsert(account *models.VendorPayoutAccount) error
	UpdateStatus(vendorID uint, status string, payoutsEnabled bool, updatedAt time.Time) (int64, error)
}

// GormVendorAccountRepository GORM 收款账户仓储
type GormVendorAccountRepository struct {
	db *gorm.DB
}

// NewVendorAccountRepository 创建收款账户仓储
func NewVendorAccountRepository(db *gorm.DB) *GormVendorAccountRepository {
	return &GormVendorAccountRepository{db: db}
}

// GetByVendor 获取商家收款账户
func (r *GormVendorAccountRepository) GetByVendor(vendorID uint) (*models.VendorPayoutAccount, error) {
	if vendorID == 0 {
		return nil, nil
	}
	var account models.VendorPayoutAccount
	if err := r.db.Where("vendor_id = ?", vendorID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// Upsert 按商家写入收款账户
func (r *GormVendorAccountRepository) Upsert(account *models.VendorPayoutAccount) error {
	if account == nil {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "vendor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider", "account_id", "status", "payouts_enabled", "connected_at", "updated_at",
		}),
	}).Create(account).Error
}

// UpdateStatus 更新收款账户连接状态
func (r *GormVendorAccountRepository) UpdateStatus(vendorID uint, status string, payoutsEnabled bool, updatedAt time.Time) (int64, error) {
	result := r.db.Model(&models.VendorPayoutAccount{}).
		Where("vendor_id = ?", vendorID).
		Updates(map[string]interface{}{
			"status":          status,
			"payouts_enabled": payoutsEnabled,
			"updated_at":      updatedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
