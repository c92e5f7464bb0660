package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VendorCommissionRepository 商家佣金数据访问接口
type VendorCommissionRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) VendorCommissionRepository

	Create(row *models.VendorCommission) error
	GetByID(id uint) (*models.VendorCommission, error)
	ExistsForOrder(orderID uint) (bool, error)
	ExistsForOrderItem(orderID, orderItemID uint) (bool, error)
	ListByOrder(orderID uint, statuses []string) ([]models.VendorCommission, error)
	ListByIDs(ids []uint) ([]models.VendorCommission, error)
	ListByPayout(payoutID uint) ([]models.VendorCommission, error)
	ListClaimableForVendorForUpdate(vendorID uint) ([]models.VendorCommission, error)
	TransitionStatus(ids []uint, from []string, to string, updatedAt time.Time) (int64, error)
	TransitionOrderStatus(orderID uint, from []string, to string, updatedAt time.Time) (int64, error)
	ClaimForPayout(ids []uint, payoutID uint, updatedAt time.Time) (int64, error)
	MarkPayoutPaid(payoutID uint, updatedAt time.Time) (int64, error)
	ReleasePayout(payoutID uint, updatedAt time.Time) (int64, error)
	DeleteUnpaidByOrder(orderID uint) (int64, error)
	ListVendorTotals(status string, unclaimedOnly bool) ([]VendorCommissionTotal, error)
	SummaryByStatus(vendorID uint) ([]StatusAmountSummary, error)
	List(filter VendorCommissionListFilter) ([]models.VendorCommission, int64, error)
}

// GormVendorCommissionRepository GORM 商家佣金仓储
type GormVendorCommissionRepository struct {
	db *gorm.DB
}

// NewVendorCommissionRepository 创建商家佣金仓储
func NewVendorCommissionRepository(db *gorm.DB) *GormVendorCommissionRepository {
	return &GormVendorCommissionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVendorCommissionRepository) WithTx(tx *gorm.DB) VendorCommissionRepository {
	if tx == nil {
		return r
	}
	return &GormVendorCommissionRepository{db: tx}
}

// Transaction 执行事务
func (r *GormVendorCommissionRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建佣金记录，订单行重复时返回唯一约束错误
func (r *GormVendorCommissionRepository) Create(row *models.VendorCommission) error {
	return r.db.Create(row).Error
}

// GetByID 按ID获取佣金
func (r *GormVendorCommissionRepository) GetByID(id uint) (*models.VendorCommission, error) {
	if id == 0 {
		return nil, nil
	}
	var row models.VendorCommission
	if err := r.db.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ExistsForOrder 判断订单是否已生成佣金
func (r *GormVendorCommissionRepository) ExistsForOrder(orderID uint) (bool, error) {
	if orderID == 0 {
		return false, nil
	}
	var count int64
	if err := r.db.Model(&models.VendorCommission{}).Where("order_id = ?", orderID).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExistsForOrderItem 判断订单行是否已生成佣金
func (r *GormVendorCommissionRepository) ExistsForOrderItem(orderID, orderItemID uint) (bool, error) {
	var count int64
	if err := r.db.Model(&models.VendorCommission{}).
		Where("order_id = ? AND order_item_id = ?", orderID, orderItemID).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByOrder 按订单查询佣金
func (r *GormVendorCommissionRepository) ListByOrder(orderID uint, statuses []string) ([]models.VendorCommission, error) {
	if orderID == 0 {
		return []models.VendorCommission{}, nil
	}
	query := r.db.Model(&models.VendorCommission{}).Where("order_id = ?", orderID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var rows []models.VendorCommission
	if err := query.Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByIDs 按ID批量查询佣金
func (r *GormVendorCommissionRepository) ListByIDs(ids []uint) ([]models.VendorCommission, error) {
	if len(ids) == 0 {
		return []models.VendorCommission{}, nil
	}
	var rows []models.VendorCommission
	if err := r.db.Where("id IN ?", ids).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByPayout 查询结算单关联的佣金
func (r *GormVendorCommissionRepository) ListByPayout(payoutID uint) ([]models.VendorCommission, error) {
	if payoutID == 0 {
		return []models.VendorCommission{}, nil
	}
	var rows []models.VendorCommission
	if err := r.db.Where("payout_id = ?", payoutID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListClaimableForVendorForUpdate 查询并锁定商家已审核且未被结算占用的佣金
func (r *GormVendorCommissionRepository) ListClaimableForVendorForUpdate(vendorID uint) ([]models.VendorCommission, error) {
	if vendorID == 0 {
		return []models.VendorCommission{}, nil
	}
	var rows []models.VendorCommission
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("vendor_id = ? AND status = ? AND payout_id IS NULL", vendorID, constants.CommissionStatusApproved).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TransitionStatus 按状态比较更新（仅未被结算占用的记录）
func (r *GormVendorCommissionRepository) TransitionStatus(ids []uint, from []string, to string, updatedAt time.Time) (int64, error) {
	if len(ids) == 0 || len(from) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.VendorCommission{}).
		Where("id IN ? AND status IN ? AND payout_id IS NULL", ids, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// TransitionOrderStatus 按订单批量比较更新状态（仅未被结算占用的记录）
func (r *GormVendorCommissionRepository) TransitionOrderStatus(orderID uint, from []string, to string, updatedAt time.Time) (int64, error) {
	if orderID == 0 || len(from) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.VendorCommission{}).
		Where("order_id = ? AND status IN ? AND payout_id IS NULL", orderID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ClaimForPayout 将已审核佣金绑定到结算单
func (r *GormVendorCommissionRepository) ClaimForPayout(ids []uint, payoutID uint, updatedAt time.Time) (int64, error) {
	if len(ids) == 0 || payoutID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.VendorCommission{}).
		Where("id IN ? AND status = ? AND payout_id IS NULL", ids, constants.CommissionStatusApproved).
		Updates(map[string]interface{}{
			"payout_id":  payoutID,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// MarkPayoutPaid 结算成功后标记佣金已支付
func (r *GormVendorCommissionRepository) MarkPayoutPaid(payoutID uint, updatedAt time.Time) (int64, error) {
	if payoutID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.VendorCommission{}).
		Where("payout_id = ? AND status = ?", payoutID, constants.CommissionStatusApproved).
		Updates(map[string]interface{}{
			"status":     constants.CommissionStatusPaid,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ReleasePayout 结算失败后解除绑定并恢复为已审核
func (r *GormVendorCommissionRepository) ReleasePayout(payoutID uint, updatedAt time.Time) (int64, error) {
	if payoutID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.VendorCommission{}).
		Where("payout_id = ? AND status IN ?", payoutID, []string{
			constants.CommissionStatusApproved,
			constants.CommissionStatusPaid,
		}).
		Updates(map[string]interface{}{
			"status":     constants.CommissionStatusApproved,
			"payout_id":  nil,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// DeleteUnpaidByOrder 删除订单下未支付且未被结算占用的佣金（强制重算使用）
func (r *GormVendorCommissionRepository) DeleteUnpaidByOrder(orderID uint) (int64, error) {
	if orderID == 0 {
		return 0, nil
	}
	result := r.db.Where("order_id = ? AND status <> ? AND payout_id IS NULL", orderID, constants.CommissionStatusPaid).
		Delete(&models.VendorCommission{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListVendorTotals 按商家汇总指定状态的佣金
func (r *GormVendorCommissionRepository) ListVendorTotals(status string, unclaimedOnly bool) ([]VendorCommissionTotal, error) {
	query := r.db.Model(&models.VendorCommission{}).Where("status = ?", strings.TrimSpace(status))
	if unclaimedOnly {
		query = query.Where("payout_id IS NULL")
	}
	var rows []VendorCommissionTotal
	if err := query.
		Select("vendor_id, COALESCE(SUM(commission_amount), 0) AS total, COUNT(*) AS commission_count").
		Group("vendor_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SummaryByStatus 按状态汇总佣金，vendorID 为 0 时统计全部商家
func (r *GormVendorCommissionRepository) SummaryByStatus(vendorID uint) ([]StatusAmountSummary, error) {
	query := r.db.Model(&models.VendorCommission{})
	if vendorID != 0 {
		query = query.Where("vendor_id = ?", vendorID)
	}
	var rows []StatusAmountSummary
	if err := query.
		Select("status, COUNT(*) AS total_count, COALESCE(SUM(commission_amount), 0) AS total_amount").
		Group("status").
		Order("status asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// List 分页查询佣金
func (r *GormVendorCommissionRepository) List(filter VendorCommissionListFilter) ([]models.VendorCommission, int64, error) {
	query := r.db.Model(&models.VendorCommission{})
	if filter.VendorID != 0 {
		query = query.Where("vendor_id = ?", filter.VendorID)
	}
	if filter.OrderID != 0 {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.PayoutID != 0 {
		query = query.Where("payout_id = ?", filter.PayoutID)
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

	var rows []models.VendorCommission
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
