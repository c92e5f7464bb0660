package service

import (
	"errors"
	"strings"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrRuleInvalid              = errors.New("commission rule invalid")
	ErrRuleTargetMissing        = errors.New("commission rule target missing")
	ErrCommissionConfigInvalid  = errors.New("commission config invalid")
	ErrCommissionStatusInvalid  = errors.New("commission status transition invalid")
	ErrCommissionStatusConflict = errors.New("commission status changed concurrently")
	ErrRefundAmountInvalid      = errors.New("refund amount invalid")
	ErrVendorAccountInvalid     = errors.New("vendor payout account invalid")
	ErrTransferFailed           = errors.New("transfer failed")
	ErrTransferOutcomeUnknown   = errors.New("transfer outcome unknown")
	ErrTransferProviderDisabled = errors.New("transfer provider disabled")
	ErrPayoutNotProcessing      = errors.New("payout is no longer processing")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
