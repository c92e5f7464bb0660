package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
)

// VendorPayoutRepository 商家结算单数据访问接口
type VendorPayoutRepository interface {
	WithTx(tx *gorm.DB) VendorPayoutRepository

	Create(payout *models.VendorPayout) error
	GetByID(id uint) (*models.VendorPayout, error)
	GetByTransferReference(reference string) (*models.VendorPayout, error)
	FinishProcessing(id uint, updates map[string]interface{}) (int64, error)
	UpdateProcessingNote(id uint, message string, updatedAt time.Time) error
	ListProcessingBefore(before time.Time, limit int) ([]models.VendorPayout, error)
	List(filter VendorPayoutListFilter) ([]models.VendorPayout, int64, error)
	SummaryByStatus(vendorID uint) ([]StatusAmountSummary, error)
}

// GormVendorPayoutRepository GORM 结算单仓储
type GormVendorPayoutRepository struct {
	db *gorm.DB
}

// NewVendorPayoutRepository 创建结算单仓储
func NewVendorPayoutRepository(db *gorm.DB) *GormVendorPayoutRepository {
	return &GormVendorPayoutRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVendorPayoutRepository) WithTx(tx *gorm.DB) VendorPayoutRepository {
	if tx == nil {
		return r
	}
	return &GormVendorPayoutRepository{db: tx}
}

// Create 创建结算单
func (r *GormVendorPayoutRepository) Create(payout *models.VendorPayout) error {
	return r.db.Create(payout).Error
}

// GetByID 按ID获取结算单
func (r *GormVendorPayoutRepository) GetByID(id uint) (*models.VendorPayout, error) {
	if id == 0 {
		return nil, nil
	}
	var payout models.VendorPayout
	if err := r.db.First(&payout, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// GetByTransferReference 按转账流水号获取结算单
func (r *GormVendorPayoutRepository) GetByTransferReference(reference string) (*models.VendorPayout, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, nil
	}
	var payout models.VendorPayout
	if err := r.db.Where("transfer_reference = ?", reference).First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// FinishProcessing 结束处理中的结算单（仅当状态仍为 processing）
func (r *GormVendorPayoutRepository) FinishProcessing(id uint, updates map[string]interface{}) (int64, error) {
	if id == 0 || len(updates) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.VendorPayout{}).
		Where("id = ? AND status = ?", id, constants.PayoutStatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// UpdateProcessingNote 记录处理中结算单的备注（例如转账结果未知）
func (r *GormVendorPayoutRepository) UpdateProcessingNote(id uint, message string, updatedAt time.Time) error {
	return r.db.Model(&models.VendorPayout{}).
		Where("id = ? AND status = ?", id, constants.PayoutStatusProcessing).
		Updates(map[string]interface{}{
			"error_message": message,
			"updated_at":    updatedAt,
		}).Error
}

// ListProcessingBefore 查询创建时间早于指定时间仍在处理中的结算单
func (r *GormVendorPayoutRepository) ListProcessingBefore(before time.Time, limit int) ([]models.VendorPayout, error) {
	query := r.db.Where("status = ? AND created_at <= ?", constants.PayoutStatusProcessing, before).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.VendorPayout
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// List 分页查询结算单
func (r *GormVendorPayoutRepository) List(filter VendorPayoutListFilter) ([]models.VendorPayout, int64, error) {
	query := r.db.Model(&models.VendorPayout{})
	if filter.VendorID != 0 {
		query = query.Where("vendor_id = ?", filter.VendorID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.VendorPayout
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// SummaryByStatus 按状态汇总结算金额
func (r *GormVendorPayoutRepository) SummaryByStatus(vendorID uint) ([]StatusAmountSummary, error) {
	query := r.db.Model(&models.VendorPayout{})
	if vendorID != 0 {
		query = query.Where("vendor_id = ?", vendorID)
	}
	var rows []StatusAmountSummary
	if err := query.
		Select("status, COUNT(*) AS total_count, COALESCE(SUM(net_amount), 0) AS total_amount").
		Group("status").
		Order("status asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
