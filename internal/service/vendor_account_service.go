package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"
)

// VendorAccountService 商家收款账户服务
type VendorAccountService struct {
	repo     repository.VendorAccountRepository
	verifier AccountVerifier
	provider string
	now      func() time.Time
}

// NewVendorAccountService 创建收款账户服务，verifier 为空时不做渠道侧校验
func NewVendorAccountService(repo repository.VendorAccountRepository, verifier AccountVerifier) *VendorAccountService {
	return &VendorAccountService{
		repo:     repo,
		verifier: verifier,
		provider: constants.TransferProviderStripe,
		now:      time.Now,
	}
}

// Connect 绑定收款账户
func (s *VendorAccountService) Connect(ctx context.Context, vendorID uint, accountID string) (*models.VendorPayoutAccount, error) {
	accountID = strings.TrimSpace(accountID)
	if vendorID == 0 || accountID == "" {
		return nil, fmt.Errorf("%w: vendor_id 与 account_id 不能为空", ErrVendorAccountInvalid)
	}
	payoutsEnabled := true
	if s.verifier != nil {
		enabled, err := s.verifier.VerifyAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		payoutsEnabled = enabled
	}
	now := s.now()
	account := &models.VendorPayoutAccount{
		VendorID:       vendorID,
		Provider:       s.provider,
		AccountID:      accountID,
		Status:         constants.VendorAccountStatusConnected,
		PayoutsEnabled: payoutsEnabled,
		ConnectedAt:    &now,
	}
	if err := s.repo.Upsert(account); err != nil {
		return nil, err
	}
	logger.Infow("vendor_account_connected",
		"vendor_id", vendorID,
		"provider", s.provider,
		"payouts_enabled", payoutsEnabled,
	)
	return s.Get(vendorID)
}

// Disconnect 解绑收款账户
func (s *VendorAccountService) Disconnect(_ context.Context, vendorID uint) error {
	affected, err := s.repo.UpdateStatus(vendorID, constants.VendorAccountStatusDisconnected, false, s.now())
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	logger.Infow("vendor_account_disconnected", "vendor_id", vendorID)
	return nil
}

// Get 获取收款账户
func (s *VendorAccountService) Get(vendorID uint) (*models.VendorPayoutAccount, error) {
	account, err := s.repo.GetByVendor(vendorID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNotFound
	}
	return account, nil
}
