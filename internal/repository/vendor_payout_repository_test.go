package repository

import (
	"testing"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"
)

func TestFinishProcessingOnlyOnce(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewVendorPayoutRepository(db)

	payout := models.VendorPayout{
		VendorID:      7,
		Amount:        models.MustMoney("55.00"),
		NetAmount:     models.MustMoney("55.00"),
		Currency:      "USD",
		Status:        constants.PayoutStatusProcessing,
		CommissionIDs: models.UintArray{1, 2, 3},
	}
	if err := repo.Create(&payout); err != nil {
		t.Fatalf("create payout failed: %v", err)
	}

	first, err := repo.FinishProcessing(payout.ID, map[string]interface{}{
		"status":     constants.PayoutStatusCompleted,
		"updated_at": time.Now(),
	})
	if err != nil || first != 1 {
		t.Fatalf("expected first finish to apply, got %d err=%v", first, err)
	}
	second, err := repo.FinishProcessing(payout.ID, map[string]interface{}{
		"status":     constants.PayoutStatusFailed,
		"updated_at": time.Now(),
	})
	if err != nil || second != 0 {
		t.Fatalf("expected terminal payout to stay untouched, got %d err=%v", second, err)
	}

	loaded, err := repo.GetByID(payout.ID)
	if err != nil || loaded == nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Status != constants.PayoutStatusCompleted {
		t.Fatalf("expected completed, got %s", loaded.Status)
	}
	if len(loaded.CommissionIDs) != 3 || loaded.CommissionIDs[2] != 3 {
		t.Fatalf("expected commission ids to round-trip, got %v", loaded.CommissionIDs)
	}
}

func TestListProcessingBefore(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewVendorPayoutRepository(db)

	old := models.VendorPayout{VendorID: 1, Status: constants.PayoutStatusProcessing, Currency: "USD", CreatedAt: time.Now().Add(-2 * time.Hour)}
	fresh := models.VendorPayout{VendorID: 2, Status: constants.PayoutStatusProcessing, Currency: "USD"}
	done := models.VendorPayout{VendorID: 3, Status: constants.PayoutStatusCompleted, Currency: "USD", CreatedAt: time.Now().Add(-3 * time.Hour)}
	for _, p := range []*models.VendorPayout{&old, &fresh, &done} {
		if err := repo.Create(p); err != nil {
			t.Fatalf("create payout failed: %v", err)
		}
	}

	rows, err := repo.ListProcessingBefore(time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list processing failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != old.ID {
		t.Fatalf("expected only the stale processing payout, got %+v", rows)
	}
}
