package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func newTestCommissionService(t *testing.T) (*CommissionService, *gorm.DB, *recordingSink) {
	t.Helper()
	db := setupServiceTestDB(t)
	sink := &recordingSink{}
	return NewCommissionService(repository.NewVendorCommissionRepository(db), sink), db, sink
}

func TestCommissionServiceApprove(t *testing.T) {
	svc, db, sink := newTestCommissionService(t)
	row := createServiceTestCommission(t, db, 1, 1, 7, "12.00", constants.CommissionStatusPending)

	updated, err := svc.Approve(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if updated.Status != constants.CommissionStatusApproved {
		t.Fatalf("expected approved, got %s", updated.Status)
	}
	if sink.count(constants.EventCommissionStatusChanged) != 1 {
		t.Fatalf("expected status change event, got %v", sink.names())
	}
	if _, err := svc.Approve(context.Background(), row.ID); !errors.Is(err, ErrCommissionStatusInvalid) {
		t.Fatalf("approving twice must be rejected, got %v", err)
	}
}

func TestCommissionServiceUpdateStatusTransitions(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{from: constants.CommissionStatusPending, to: constants.CommissionStatusCancelled, allowed: true},
		{from: constants.CommissionStatusPending, to: constants.CommissionStatusRefunded, allowed: true},
		{from: constants.CommissionStatusApproved, to: constants.CommissionStatusRefunded, allowed: true},
		{from: constants.CommissionStatusApproved, to: constants.CommissionStatusPending, allowed: false},
		{from: constants.CommissionStatusPending, to: constants.CommissionStatusPaid, allowed: false},
		{from: constants.CommissionStatusPaid, to: constants.CommissionStatusRefunded, allowed: false},
		{from: constants.CommissionStatusCancelled, to: constants.CommissionStatusApproved, allowed: false},
	}
	for _, tc := range cases {
		t.Run(tc.from+"_to_"+tc.to, func(t *testing.T) {
			svc, db, _ := newTestCommissionService(t)
			row := createServiceTestCommission(t, db, 1, 1, 7, "12.00", tc.from)

			updated, err := svc.UpdateStatus(context.Background(), row.ID, tc.to)
			if tc.allowed {
				if err != nil || updated.Status != tc.to {
					t.Fatalf("expected %s, got %+v %v", tc.to, updated, err)
				}
				return
			}
			if !errors.Is(err, ErrCommissionStatusInvalid) {
				t.Fatalf("expected invalid transition, got %v", err)
			}
		})
	}
}

func TestCommissionServiceUpdateStatusRejectsClaimedRow(t *testing.T) {
	svc, db, _ := newTestCommissionService(t)
	row := createServiceTestCommission(t, db, 1, 1, 7, "12.00", constants.CommissionStatusApproved)
	if err := db.Model(&models.VendorCommission{}).Where("id = ?", row.ID).Update("payout_id", 3).Error; err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if _, err := svc.UpdateStatus(context.Background(), row.ID, constants.CommissionStatusCancelled); !errors.Is(err, ErrCommissionStatusConflict) {
		t.Fatalf("claimed commission must not change status, got %v", err)
	}
}

func TestCommissionServiceBulkApprove(t *testing.T) {
	svc, db, sink := newTestCommissionService(t)
	a := createServiceTestCommission(t, db, 1, 1, 7, "10.00", constants.CommissionStatusPending)
	b := createServiceTestCommission(t, db, 2, 1, 7, "10.00", constants.CommissionStatusPending)
	c := createServiceTestCommission(t, db, 3, 1, 7, "10.00", constants.CommissionStatusCancelled)

	affected, err := svc.BulkApprove(context.Background(), []uint{a.ID, b.ID, b.ID, c.ID, 0})
	if err != nil {
		t.Fatalf("bulk approve failed: %v", err)
	}
	if affected != 2 {
		t.Fatalf("expected two approvals, got %d", affected)
	}
	if sink.count(constants.EventCommissionBulkApproved) != 1 {
		t.Fatalf("expected bulk approved event, got %v", sink.names())
	}
	if affected, err := svc.BulkApprove(context.Background(), nil); err != nil || affected != 0 {
		t.Fatalf("empty bulk approve must be a no-op: %d %v", affected, err)
	}
}

func TestCommissionServiceVendorBalance(t *testing.T) {
	svc, db, _ := newTestCommissionService(t)
	createServiceTestCommission(t, db, 1, 1, 7, "10.00", constants.CommissionStatusPending)
	createServiceTestCommission(t, db, 2, 1, 7, "15.50", constants.CommissionStatusApproved)
	createServiceTestCommission(t, db, 3, 1, 7, "4.50", constants.CommissionStatusApproved)
	createServiceTestCommission(t, db, 4, 1, 7, "30.00", constants.CommissionStatusPaid)
	createServiceTestCommission(t, db, 5, 1, 8, "99.00", constants.CommissionStatusApproved)

	balance, err := svc.VendorBalance(7)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if !balance.Pending.Equal(decimal.NewFromInt(10)) || !balance.Approved.Equal(decimal.NewFromInt(20)) || !balance.Paid.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected balance: %+v", balance)
	}
	if !balance.Refunded.IsZero() || !balance.Cancelled.IsZero() {
		t.Fatalf("unexpected reversed balance: %+v", balance)
	}

	rows, total, err := svc.List(repository.VendorCommissionListFilter{VendorID: 7, Status: " APPROVED ", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("expected two approved rows, got %d", total)
	}
	if _, err := svc.Get(999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
