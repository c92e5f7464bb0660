package service

import (
	"context"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
)

const reconcileBatchSize = 100

type reconcileOutcome int

const (
	reconcileUnresolved reconcileOutcome = iota
	reconcileCompleted
	reconcileFailed
	reconcileSkipped
)

// PayoutReconcileResult 对账汇总
type PayoutReconcileResult struct {
	Checked    int `json:"checked"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Unresolved int `json:"unresolved"`
	Skipped    int `json:"skipped"`
}

// ReconcileProcessingPayouts 查询处理中超过 olderThan 的结算单在渠道侧的转账结果
func (s *PayoutAggregator) ReconcileProcessingPayouts(ctx context.Context, olderThan time.Duration) (*PayoutReconcileResult, error) {
	if olderThan < 0 {
		olderThan = 0
	}
	payouts, err := s.payoutRepo.ListProcessingBefore(s.now().Add(-olderThan), reconcileBatchSize)
	if err != nil {
		return nil, err
	}

	result := &PayoutReconcileResult{}
	for i := range payouts {
		if ctx.Err() != nil {
			break
		}
		result.Checked++
		switch s.reconcilePayout(ctx, &payouts[i]) {
		case reconcileCompleted:
			result.Completed++
		case reconcileFailed:
			result.Failed++
		case reconcileSkipped:
			result.Skipped++
		default:
			result.Unresolved++
		}
	}

	logger.Infow("payout_reconcile_finished",
		"checked", result.Checked,
		"completed", result.Completed,
		"failed", result.Failed,
		"unresolved", result.Unresolved,
		"skipped", result.Skipped,
	)
	return result, nil
}

// reconcilePayout 持有商家锁处理单个结算单，锁被占用说明转账仍在进行
func (s *PayoutAggregator) reconcilePayout(ctx context.Context, snapshot *models.VendorPayout) reconcileOutcome {
	log := logger.FromContext(ctx, "payout_id", snapshot.ID, "vendor_id", snapshot.VendorID)

	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx, snapshot.VendorID)
		if err != nil {
			log.Warnw("payout_reconcile_lock_failed", "error", err)
			return reconcileUnresolved
		}
		if !acquired {
			log.Infow("payout_reconcile_locked")
			return reconcileUnresolved
		}
		defer release()
	}

	payout, err := s.payoutRepo.GetByID(snapshot.ID)
	if err != nil {
		log.Warnw("payout_reconcile_reload_failed", "error", err)
		return reconcileUnresolved
	}
	if payout == nil || payout.Status != constants.PayoutStatusProcessing {
		log.Infow("payout_reconcile_skipped")
		return reconcileSkipped
	}

	receipt, err := s.transfer.LookupTransfer(ctx, payout.TransferGroup())
	if err != nil {
		log.Warnw("payout_reconcile_lookup_failed", "error", err)
		return reconcileUnresolved
	}
	if receipt != nil {
		if err := s.completePayout(ctx, payout, receipt); err != nil {
			log.Errorw("payout_reconcile_complete_failed", "error", err)
			return reconcileUnresolved
		}
		log.Infow("payout_reconciled", "status", payout.Status, "reference", receipt.Reference)
		return reconcileCompleted
	}
	if err := s.failPayout(ctx, payout, "transfer not found at provider during reconciliation"); err != nil {
		log.Errorw("payout_reconcile_fail_failed", "error", err)
		return reconcileUnresolved
	}
	log.Infow("payout_reconciled", "status", payout.Status)
	return reconcileFailed
}
