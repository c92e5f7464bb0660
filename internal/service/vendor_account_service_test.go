package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/repository"
)

type stubAccountVerifier struct {
	enabled map[string]bool
}

func (v stubAccountVerifier) VerifyAccount(_ context.Context, accountID string) (bool, error) {
	enabled, ok := v.enabled[accountID]
	if !ok {
		return false, ErrVendorAccountInvalid
	}
	return enabled, nil
}

func TestVendorAccountServiceConnectAndDisconnect(t *testing.T) {
	db := setupServiceTestDB(t)
	verifier := stubAccountVerifier{enabled: map[string]bool{"acct_ready": true, "acct_restricted": false}}
	svc := NewVendorAccountService(repository.NewVendorAccountRepository(db), verifier)

	account, err := svc.Connect(context.Background(), 7, " acct_ready ")
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if account.AccountID != "acct_ready" || account.Status != constants.VendorAccountStatusConnected || !account.PayoutsEnabled {
		t.Fatalf("unexpected account: %+v", account)
	}

	account, err = svc.Connect(context.Background(), 7, "acct_restricted")
	if err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if account.AccountID != "acct_restricted" || account.PayoutsEnabled {
		t.Fatalf("reconnect must replace the account: %+v", account)
	}

	if _, err := svc.Connect(context.Background(), 8, "acct_unknown"); !errors.Is(err, ErrVendorAccountInvalid) {
		t.Fatalf("expected invalid account, got %v", err)
	}
	if _, err := svc.Connect(context.Background(), 0, "acct_ready"); !errors.Is(err, ErrVendorAccountInvalid) {
		t.Fatalf("expected invalid vendor, got %v", err)
	}

	if err := svc.Disconnect(context.Background(), 7); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	account, err = svc.Get(7)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if account.Status != constants.VendorAccountStatusDisconnected || account.PayoutsEnabled {
		t.Fatalf("expected disconnected account: %+v", account)
	}
	if err := svc.Disconnect(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
