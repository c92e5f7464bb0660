package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/events"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"
)

// 人工可执行的佣金状态流转（paid 只能由结算流程写入）
var commissionManualTransitions = map[string]map[string]struct{}{
	constants.CommissionStatusPending: {
		constants.CommissionStatusApproved:  {},
		constants.CommissionStatusCancelled: {},
		constants.CommissionStatusRefunded:  {},
	},
	constants.CommissionStatusApproved: {
		constants.CommissionStatusCancelled: {},
		constants.CommissionStatusRefunded:  {},
	},
}

// VendorBalance 商家佣金余额
type VendorBalance struct {
	VendorID  uint         `json:"vendor_id"`
	Pending   models.Money `json:"pending"`
	Approved  models.Money `json:"approved"`
	Paid      models.Money `json:"paid"`
	Cancelled models.Money `json:"cancelled"`
	Refunded  models.Money `json:"refunded"`
}

// CommissionService 佣金管理服务
type CommissionService struct {
	repo repository.VendorCommissionRepository
	sink events.Sink
	now  func() time.Time
}

// NewCommissionService 创建佣金管理服务
func NewCommissionService(repo repository.VendorCommissionRepository, sink events.Sink) *CommissionService {
	return &CommissionService{repo: repo, sink: sink, now: time.Now}
}

// Approve 审核通过单条佣金
func (s *CommissionService) Approve(ctx context.Context, id uint) (*models.VendorCommission, error) {
	return s.UpdateStatus(ctx, id, constants.CommissionStatusApproved)
}

// BulkApprove 批量审核待审核佣金，返回实际更新条数
func (s *CommissionService) BulkApprove(ctx context.Context, ids []uint) (int64, error) {
	ids = uniqueUintIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	affected, err := s.repo.TransitionStatus(ids, []string{constants.CommissionStatusPending}, constants.CommissionStatusApproved, s.now())
	if err != nil {
		return 0, err
	}
	events.Emit(ctx, s.sink, constants.EventCommissionBulkApproved, map[string]interface{}{
		"commission_ids": ids,
		"approved":       affected,
	})
	logger.Infow("commission_bulk_approved", "requested", len(ids), "approved", affected)
	return affected, nil
}

// UpdateStatus 人工修改佣金状态（比较并交换）
func (s *CommissionService) UpdateStatus(ctx context.Context, id uint, status string) (*models.VendorCommission, error) {
	row, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	target := strings.ToLower(strings.TrimSpace(status))
	if _, ok := commissionManualTransitions[row.Status][target]; !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrCommissionStatusInvalid, row.Status, target)
	}
	previous := row.Status
	affected, err := s.repo.TransitionStatus([]uint{row.ID}, []string{previous}, target, s.now())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrCommissionStatusConflict
	}
	updated, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	events.Emit(ctx, s.sink, constants.EventCommissionStatusChanged, map[string]interface{}{
		"commission_id": updated.ID,
		"vendor_id":     updated.VendorID,
		"order_id":      updated.OrderID,
		"from":          previous,
		"status":        updated.Status,
	})
	return updated, nil
}

// Get 获取佣金
func (s *CommissionService) Get(id uint) (*models.VendorCommission, error) {
	if id == 0 {
		return nil, ErrNotFound
	}
	row, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}
	return row, nil
}

// List 分页查询佣金
func (s *CommissionService) List(filter repository.VendorCommissionListFilter) ([]models.VendorCommission, int64, error) {
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	return s.repo.List(filter)
}

// Summary 按状态统计佣金，vendorID 为 0 时统计全部
func (s *CommissionService) Summary(vendorID uint) ([]repository.StatusAmountSummary, error) {
	return s.repo.SummaryByStatus(vendorID)
}

// VendorBalance 商家各状态佣金金额
func (s *CommissionService) VendorBalance(vendorID uint) (*VendorBalance, error) {
	if vendorID == 0 {
		return nil, ErrNotFound
	}
	rows, err := s.repo.SummaryByStatus(vendorID)
	if err != nil {
		return nil, err
	}
	balance := &VendorBalance{VendorID: vendorID}
	for _, row := range rows {
		amount := models.NewMoneyFromDecimal(row.Amount)
		switch row.Status {
		case constants.CommissionStatusPending:
			balance.Pending = amount
		case constants.CommissionStatusApproved:
			balance.Approved = amount
		case constants.CommissionStatusPaid:
			balance.Paid = amount
		case constants.CommissionStatusCancelled:
			balance.Cancelled = amount
		case constants.CommissionStatusRefunded:
			balance.Refunded = amount
		}
	}
	return balance, nil
}

func uniqueUintIDs(ids []uint) []uint {
	result := make([]uint, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
