package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/payment/stripe"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"github.com/shopspring/decimal"
)

// TransferRequest 转账请求
type TransferRequest struct {
	PayoutID       uint
	VendorID       uint
	Amount         decimal.Decimal
	Currency       string
	TransferGroup  string
	IdempotencyKey string
	CommissionIDs  []uint
}

// TransferReceipt 转账回执
type TransferReceipt struct {
	Reference   string
	Destination string
	Amount      decimal.Decimal
	Currency    string
	CreatedAt   *time.Time
}

// TransferProvider 外部转账渠道
type TransferProvider interface {
	IsDestinationConnected(ctx context.Context, vendorID uint) (bool, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error)
	LookupTransfer(ctx context.Context, transferGroup string) (*TransferReceipt, error)
}

// AccountVerifier 校验渠道侧收款账户
type AccountVerifier interface {
	VerifyAccount(ctx context.Context, accountID string) (payoutsEnabled bool, err error)
}

// NewTransferProvider 按配置创建转账渠道
func NewTransferProvider(cfg config.TransferConfig, accounts repository.VendorAccountRepository) (TransferProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", constants.TransferProviderDisabled:
		return DisabledTransferProvider{}, nil
	case constants.TransferProviderStripe:
		stripeCfg := &stripe.Config{
			SecretKey:  cfg.Stripe.SecretKey,
			APIBaseURL: cfg.Stripe.APIBaseURL,
			APIVersion: cfg.Stripe.APIVersion,
			Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		}
		if err := stripe.ValidateConfig(stripeCfg); err != nil {
			return nil, err
		}
		return NewStripeTransferProvider(stripeCfg, accounts), nil
	default:
		return nil, fmt.Errorf("unsupported transfer provider: %s", cfg.Provider)
	}
}

// StripeTransferProvider Stripe Connect 转账渠道
type StripeTransferProvider struct {
	cfg      *stripe.Config
	accounts repository.VendorAccountRepository
}

// NewStripeTransferProvider 创建 Stripe 转账渠道
func NewStripeTransferProvider(cfg *stripe.Config, accounts repository.VendorAccountRepository) *StripeTransferProvider {
	return &StripeTransferProvider{cfg: cfg, accounts: accounts}
}

// IsDestinationConnected 商家是否已连接可收款的 Stripe 账户
func (p *StripeTransferProvider) IsDestinationConnected(_ context.Context, vendorID uint) (bool, error) {
	account, err := p.connectedAccount(vendorID)
	if err != nil {
		return false, err
	}
	return account != "", nil
}

// CreateTransfer 发起转账，仅渠道明确拒绝时返回失败，其余异常映射为结果未知
func (p *StripeTransferProvider) CreateTransfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error) {
	destination, err := p.connectedAccount(req.VendorID)
	if err != nil {
		return nil, err
	}
	if destination == "" {
		return nil, fmt.Errorf("%w: vendor %d has no connected account", ErrTransferFailed, req.VendorID)
	}
	result, err := stripe.CreateTransfer(ctx, p.cfg, stripe.TransferInput{
		Destination:    destination,
		Amount:         req.Amount.StringFixed(2),
		Currency:       req.Currency,
		TransferGroup:  req.TransferGroup,
		IdempotencyKey: req.IdempotencyKey,
		Description:    fmt.Sprintf("Vendor payout #%d", req.PayoutID),
		Metadata: map[string]string{
			"payout_id":        strconv.FormatUint(uint64(req.PayoutID), 10),
			"vendor_id":        strconv.FormatUint(uint64(req.VendorID), 10),
			"commission_count": strconv.Itoa(len(req.CommissionIDs)),
		},
	})
	if err != nil {
		return nil, mapStripeError(err)
	}
	return stripeReceipt(result, destination), nil
}

// LookupTransfer 按 transfer_group 查询转账，未找到返回 nil
func (p *StripeTransferProvider) LookupTransfer(ctx context.Context, transferGroup string) (*TransferReceipt, error) {
	result, err := stripe.FindTransferByGroup(ctx, p.cfg, transferGroup)
	if err != nil {
		return nil, mapStripeError(err)
	}
	if result == nil {
		return nil, nil
	}
	return stripeReceipt(result, result.Destination), nil
}

// VerifyAccount 查询 Stripe 账户是否允许收款
func (p *StripeTransferProvider) VerifyAccount(ctx context.Context, accountID string) (bool, error) {
	account, err := stripe.RetrieveAccount(ctx, p.cfg, accountID)
	if err != nil {
		if errors.Is(err, stripe.ErrAccountNotFound) {
			return false, fmt.Errorf("%w: %v", ErrVendorAccountInvalid, err)
		}
		return false, err
	}
	return account.PayoutsEnabled, nil
}

func (p *StripeTransferProvider) connectedAccount(vendorID uint) (string, error) {
	if p.accounts == nil {
		return "", nil
	}
	account, err := p.accounts.GetByVendor(vendorID)
	if err != nil {
		return "", err
	}
	if account == nil ||
		account.Provider != constants.TransferProviderStripe ||
		account.Status != constants.VendorAccountStatusConnected ||
		!account.PayoutsEnabled {
		return "", nil
	}
	return strings.TrimSpace(account.AccountID), nil
}

func stripeReceipt(result *stripe.TransferResult, destination string) *TransferReceipt {
	amount, _ := decimal.NewFromString(result.Amount)
	return &TransferReceipt{
		Reference:   result.TransferID,
		Destination: destination,
		Amount:      amount,
		Currency:    result.Currency,
		CreatedAt:   result.CreatedAt,
	}
}

func mapStripeError(err error) error {
	if err == nil {
		return nil
	}
	if stripe.IsOutcomeUnknown(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTransferOutcomeUnknown, err)
	}
	return fmt.Errorf("%w: %v", ErrTransferFailed, err)
}

// DisabledTransferProvider 未配置转账渠道
type DisabledTransferProvider struct{}

// IsDestinationConnected 未配置渠道时所有商家均不可结算
func (DisabledTransferProvider) IsDestinationConnected(context.Context, uint) (bool, error) {
	return false, nil
}

// CreateTransfer 返回渠道未启用
func (DisabledTransferProvider) CreateTransfer(context.Context, TransferRequest) (*TransferReceipt, error) {
	return nil, ErrTransferProviderDisabled
}

// LookupTransfer 返回渠道未启用
func (DisabledTransferProvider) LookupTransfer(context.Context, string) (*TransferReceipt, error) {
	return nil, ErrTransferProviderDisabled
}
