package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/events"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultTransferTimeout = 15 * time.Second
	maxPayoutConcurrency   = 16
)

var errCommissionClaimConflict = errors.New("commission claim conflict")

// VendorLocker 商家级互斥锁，同一商家同一时刻至多一个结算流程
type VendorLocker interface {
	TryLock(ctx context.Context, vendorID uint) (release func(), acquired bool, err error)
}

// VendorPayoutCandidate 待结算商家
type VendorPayoutCandidate struct {
	VendorID        uint            `json:"vendor_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CommissionCount int64           `json:"commission_count"`
}

// PayoutResult 单个商家结算结果
type PayoutResult struct {
	VendorID      uint                 `json:"vendor_id"`
	Outcome       string               `json:"outcome"`
	DeclineReason string               `json:"decline_reason,omitempty"`
	Payout        *models.VendorPayout `json:"payout,omitempty"`
}

// Declined 是否被拒绝（非错误）
func (r *PayoutResult) Declined() bool {
	return r != nil && r.Outcome == constants.PayoutOutcomeDeclined
}

// PayoutBatchResult 批量结算汇总
type PayoutBatchResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// PayoutAggregatorOptions 结算参数
type PayoutAggregatorOptions struct {
	TransferTimeout time.Duration
	Concurrency     int
}

// PayoutAggregator 商家结算服务
type PayoutAggregator struct {
	commissionRepo  repository.VendorCommissionRepository
	payoutRepo      repository.VendorPayoutRepository
	transfer        TransferProvider
	settings        CommissionSettingSource
	locker          VendorLocker
	sink            events.Sink
	transferTimeout time.Duration
	concurrency     int
	now             func() time.Time
}

// NewPayoutAggregator 创建结算服务
func NewPayoutAggregator(
	commissionRepo repository.VendorCommissionRepository,
	payoutRepo repository.VendorPayoutRepository,
	transfer TransferProvider,
	settings CommissionSettingSource,
	locker VendorLocker,
	sink events.Sink,
	options PayoutAggregatorOptions,
) *PayoutAggregator {
	timeout := options.TransferTimeout
	if timeout <= 0 {
		timeout = defaultTransferTimeout
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > maxPayoutConcurrency {
		concurrency = maxPayoutConcurrency
	}
	if transfer == nil {
		transfer = DisabledTransferProvider{}
	}
	return &PayoutAggregator{
		commissionRepo:  commissionRepo,
		payoutRepo:      payoutRepo,
		transfer:        transfer,
		settings:        settings,
		locker:          locker,
		sink:            sink,
		transferTimeout: timeout,
		concurrency:     concurrency,
		now:             time.Now,
	}
}

// VendorsReadyForPayout 汇总已审核且未被认领的佣金，返回达到门槛的商家（按金额倒序）
func (s *PayoutAggregator) VendorsReadyForPayout(minimum decimal.Decimal) ([]VendorPayoutCandidate, error) {
	rows, err := s.commissionRepo.ListVendorTotals(constants.CommissionStatusApproved, true)
	if err != nil {
		return nil, err
	}
	candidates := make([]VendorPayoutCandidate, 0, len(rows))
	for _, row := range rows {
		total := row.Total.Round(2)
		if total.LessThan(minimum) || !total.IsPositive() {
			continue
		}
		candidates = append(candidates, VendorPayoutCandidate{
			VendorID:        row.VendorID,
			TotalAmount:     total,
			CommissionCount: row.CommissionCount,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].TotalAmount.Equal(candidates[j].TotalAmount) {
			return candidates[i].TotalAmount.GreaterThan(candidates[j].TotalAmount)
		}
		return candidates[i].VendorID < candidates[j].VendorID
	})
	return candidates, nil
}

// ProcessVendorPayout 为单个商家结算；拒绝以结果返回，不作为错误
func (s *PayoutAggregator) ProcessVendorPayout(ctx context.Context, vendorID uint) (*PayoutResult, error) {
	if vendorID == 0 {
		return nil, ErrNotFound
	}
	log := logger.FromContext(ctx, "vendor_id", vendorID)

	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx, vendorID)
		if err != nil {
			return nil, err
		}
		if !acquired {
			log.Infow("payout_declined", "reason", constants.PayoutDeclineInProgress)
			return declinedPayout(vendorID, constants.PayoutDeclineInProgress), nil
		}
		defer release()
	}

	connected, err := s.transfer.IsDestinationConnected(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if !connected {
		log.Infow("payout_declined", "reason", constants.PayoutDeclineNotConnected)
		return declinedPayout(vendorID, constants.PayoutDeclineNotConnected), nil
	}

	setting, err := s.settings.GetCommissionSetting()
	if err != nil {
		return nil, err
	}

	payout, reason, err := s.claimPayout(vendorID, setting)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		log.Infow("payout_declined", "reason", reason)
		return declinedPayout(vendorID, reason), nil
	}

	return s.executeTransfer(ctx, payout)
}

// claimPayout 在同一事务中创建处理中的结算单并认领佣金；返回拒绝原因时不产生任何写入
func (s *PayoutAggregator) claimPayout(vendorID uint, setting CommissionSetting) (*models.VendorPayout, string, error) {
	var payout *models.VendorPayout
	declineReason := ""

	err := s.commissionRepo.Transaction(func(tx *gorm.DB) error {
		commissionRepo := s.commissionRepo.WithTx(tx)
		payoutRepo := s.payoutRepo.WithTx(tx)

		rows, err := commissionRepo.ListClaimableForVendorForUpdate(vendorID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			declineReason = constants.PayoutDeclineNoCommissions
			return nil
		}

		gross := decimal.Zero
		ids := make([]uint, 0, len(rows))
		for _, row := range rows {
			gross = gross.Add(row.CommissionAmount.Decimal)
			ids = append(ids, row.ID)
		}
		gross = gross.Round(2)
		if gross.LessThan(setting.MinimumPayoutDecimal()) {
			declineReason = constants.PayoutDeclineBelowMinimum
			return nil
		}
		fee := calculatePayoutFee(gross, setting)
		net := gross.Sub(fee)
		if !net.IsPositive() {
			declineReason = constants.PayoutDeclineBelowMinimum
			return nil
		}

		now := s.now()
		payout = &models.VendorPayout{
			VendorID:      vendorID,
			Amount:        models.NewMoneyFromDecimal(gross),
			FeeAmount:     models.NewMoneyFromDecimal(fee),
			NetAmount:     models.NewMoneyFromDecimal(net),
			Currency:      setting.Currency,
			Status:        constants.PayoutStatusProcessing,
			CommissionIDs: models.UintArray(ids),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := payoutRepo.Create(payout); err != nil {
			return err
		}
		claimed, err := commissionRepo.ClaimForPayout(ids, payout.ID, now)
		if err != nil {
			return err
		}
		if claimed != int64(len(ids)) {
			return errCommissionClaimConflict
		}
		return nil
	})
	if errors.Is(err, errCommissionClaimConflict) {
		return nil, constants.PayoutDeclineClaimConflict, nil
	}
	if err != nil {
		return nil, "", err
	}
	return payout, declineReason, nil
}

func (s *PayoutAggregator) executeTransfer(ctx context.Context, payout *models.VendorPayout) (*PayoutResult, error) {
	log := logger.FromContext(ctx, "vendor_id", payout.VendorID, "payout_id", payout.ID)
	transferCtx, cancel := context.WithTimeout(ctx, s.transferTimeout)
	defer cancel()

	receipt, err := s.transfer.CreateTransfer(transferCtx, TransferRequest{
		PayoutID:       payout.ID,
		VendorID:       payout.VendorID,
		Amount:         payout.NetAmount.Decimal,
		Currency:       payout.Currency,
		TransferGroup:  payout.TransferGroup(),
		IdempotencyKey: payout.TransferGroup(),
		CommissionIDs:  []uint(payout.CommissionIDs),
	})
	switch {
	case err == nil && receipt != nil:
		if err := s.completePayout(ctx, payout, receipt); err != nil {
			return nil, err
		}
		log.Infow("payout_completed", "net_amount", payout.NetAmount.String(), "reference", receipt.Reference)
		return &PayoutResult{VendorID: payout.VendorID, Outcome: constants.PayoutOutcomeProcessed, Payout: payout}, nil
	case isTransferOutcomeUnknown(err, transferCtx):
		note := fmt.Sprintf("transfer outcome unknown, awaiting reconciliation: %v", err)
		if noteErr := s.payoutRepo.UpdateProcessingNote(payout.ID, note, s.now()); noteErr != nil {
			log.Errorw("payout_note_update_failed", "error", noteErr)
		}
		payout.ErrorMessage = note
		log.Warnw("payout_outcome_unknown", "error", err)
		return &PayoutResult{VendorID: payout.VendorID, Outcome: constants.PayoutOutcomePending, Payout: payout}, nil
	default:
		if err == nil {
			err = fmt.Errorf("%w: empty transfer receipt", ErrTransferFailed)
		}
		if failErr := s.failPayout(ctx, payout, err.Error()); failErr != nil {
			return nil, failErr
		}
		log.Warnw("payout_failed", "error", err)
		return &PayoutResult{VendorID: payout.VendorID, Outcome: constants.PayoutOutcomeFailed, Payout: payout}, nil
	}
}

// completePayout 结算单置为完成并将认领的佣金标记为已结算
func (s *PayoutAggregator) completePayout(ctx context.Context, payout *models.VendorPayout, receipt *TransferReceipt) error {
	now := s.now()
	finished := false
	err := s.commissionRepo.Transaction(func(tx *gorm.DB) error {
		affected, err := s.payoutRepo.WithTx(tx).FinishProcessing(payout.ID, map[string]interface{}{
			"status":             constants.PayoutStatusCompleted,
			"transfer_reference": receipt.Reference,
			"destination":        receipt.Destination,
			"error_message":      "",
			"processed_at":       now,
			"updated_at":         now,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		finished = true
		_, err = s.commissionRepo.WithTx(tx).MarkPayoutPaid(payout.ID, now)
		return err
	})
	if err != nil {
		return err
	}
	if !finished {
		logger.Errorw("payout_transfer_after_finish", "payout_id", payout.ID, "reference", receipt.Reference)
		return fmt.Errorf("%w: payout %d transfer %s", ErrPayoutNotProcessing, payout.ID, receipt.Reference)
	}
	reference := receipt.Reference
	payout.Status = constants.PayoutStatusCompleted
	payout.TransferReference = &reference
	payout.Destination = receipt.Destination
	payout.ErrorMessage = ""
	payout.ProcessedAt = &now
	events.Emit(ctx, s.sink, constants.EventPayoutCompleted, payoutPayload(payout))
	return nil
}

// failPayout 结算单置为失败并释放佣金（恢复为 approved 且清空 payout_id）
func (s *PayoutAggregator) failPayout(ctx context.Context, payout *models.VendorPayout, message string) error {
	now := s.now()
	finished := false
	err := s.commissionRepo.Transaction(func(tx *gorm.DB) error {
		affected, err := s.payoutRepo.WithTx(tx).FinishProcessing(payout.ID, map[string]interface{}{
			"status":        constants.PayoutStatusFailed,
			"error_message": message,
			"updated_at":    now,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		finished = true
		_, err = s.commissionRepo.WithTx(tx).ReleasePayout(payout.ID, now)
		return err
	})
	if err != nil {
		return err
	}
	if !finished {
		logger.Warnw("payout_already_finished", "payout_id", payout.ID)
		return fmt.Errorf("%w: payout %d", ErrPayoutNotProcessing, payout.ID)
	}
	payout.Status = constants.PayoutStatusFailed
	payout.ErrorMessage = message
	events.Emit(ctx, s.sink, constants.EventPayoutFailed, payoutPayload(payout))
	return nil
}

// ProcessAllScheduledPayouts 对所有达到门槛的商家执行结算，单个商家出错不影响其他商家
func (s *PayoutAggregator) ProcessAllScheduledPayouts(ctx context.Context) (*PayoutBatchResult, error) {
	setting, err := s.settings.GetCommissionSetting()
	if err != nil {
		return nil, err
	}
	candidates, err := s.VendorsReadyForPayout(setting.MinimumPayoutDecimal())
	if err != nil {
		return nil, err
	}

	result := &PayoutBatchResult{}
	var mu sync.Mutex
	tally := func(outcome *PayoutResult, err error, vendorID uint) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			result.Failed++
			logger.Errorw("payout_vendor_error", "vendor_id", vendorID, "error", err)
		case outcome.Outcome == constants.PayoutOutcomeProcessed:
			result.Processed++
		case outcome.Outcome == constants.PayoutOutcomeDeclined:
			result.Skipped++
		default:
			result.Failed++
		}
	}

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(vendorID uint) {
			defer wg.Done()
			defer func() { <-sem }()
			outcome, err := s.ProcessVendorPayout(ctx, vendorID)
			tally(outcome, err, vendorID)
		}(candidate.VendorID)
	}
	wg.Wait()

	events.Emit(ctx, s.sink, constants.EventPayoutBatchProcessed, map[string]interface{}{
		"candidates": len(candidates),
		"processed":  result.Processed,
		"failed":     result.Failed,
		"skipped":    result.Skipped,
	})
	logger.Infow("payout_batch_finished",
		"candidates", len(candidates),
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result, ctx.Err()
}

// GetPayout 获取结算单
func (s *PayoutAggregator) GetPayout(id uint) (*models.VendorPayout, error) {
	if id == 0 {
		return nil, ErrNotFound
	}
	payout, err := s.payoutRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, ErrNotFound
	}
	return payout, nil
}

// ListPayouts 分页查询结算单
func (s *PayoutAggregator) ListPayouts(filter repository.VendorPayoutListFilter) ([]models.VendorPayout, int64, error) {
	return s.payoutRepo.List(filter)
}

// PayoutSummary 按状态统计结算单
func (s *PayoutAggregator) PayoutSummary(vendorID uint) ([]repository.StatusAmountSummary, error) {
	return s.payoutRepo.SummaryByStatus(vendorID)
}

func calculatePayoutFee(gross decimal.Decimal, setting CommissionSetting) decimal.Decimal {
	if setting.FeeHandling != constants.FeeHandlingVendor {
		return decimal.Zero
	}
	return gross.Mul(setting.PlatformFeeDecimal()).Div(hundred).Round(2)
}

func isTransferOutcomeUnknown(err error, transferCtx context.Context) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransferOutcomeUnknown) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	return transferCtx.Err() != nil
}

func declinedPayout(vendorID uint, reason string) *PayoutResult {
	return &PayoutResult{VendorID: vendorID, Outcome: constants.PayoutOutcomeDeclined, DeclineReason: reason}
}

func payoutPayload(payout *models.VendorPayout) map[string]interface{} {
	payload := map[string]interface{}{
		"payout_id":      payout.ID,
		"vendor_id":      payout.VendorID,
		"amount":         payout.Amount.String(),
		"fee_amount":     payout.FeeAmount.String(),
		"net_amount":     payout.NetAmount.String(),
		"currency":       payout.Currency,
		"status":         payout.Status,
		"commission_ids": []uint(payout.CommissionIDs),
	}
	if payout.TransferReference != nil {
		payload["transfer_reference"] = *payout.TransferReference
	}
	if payout.ErrorMessage != "" {
		payload["error_message"] = payout.ErrorMessage
	}
	return payload
}
