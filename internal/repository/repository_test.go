package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/dujiao-next/commission-engine/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupRepositoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:commission_repository_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrateWith(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func createRepoTestCommission(t *testing.T, db *gorm.DB, orderID, itemID, vendorID uint, amount, status string) models.VendorCommission {
	t.Helper()

	row := models.VendorCommission{
		OrderID:          orderID,
		OrderItemID:      itemID,
		ProductID:        1,
		VendorID:         vendorID,
		OrderTotal:       models.MustMoney("100.00"),
		CommissionAmount: models.MustMoney(amount),
		Status:           status,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create commission failed: %v", err)
	}
	return row
}
