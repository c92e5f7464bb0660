package worker

import (
	"context"
	"testing"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"
)

func TestNewSchedulerServiceJobs(t *testing.T) {
	container, _ := setupWorkerTest(t, map[string]interface{}{
		"payout.schedule":           "",
		"payout.reconcile_schedule": "",
	})
	if _, err := NewSchedulerService(container); err == nil {
		t.Fatalf("expected error without scheduled jobs")
	}

	container.Config.Payout.Schedule = "not a cron"
	container.Config.Payout.ReconcileSchedule = "@every 15m"
	scheduler, err := NewSchedulerService(container)
	if err != nil {
		t.Fatalf("new scheduler failed: %v", err)
	}
	if scheduler.jobs != 1 {
		t.Fatalf("invalid schedule should be skipped, got %d jobs", scheduler.jobs)
	}

	container.Config.Payout.Schedule = "0 3 * * *"
	scheduler, err = NewSchedulerService(container)
	if err != nil {
		t.Fatalf("new scheduler failed: %v", err)
	}
	if scheduler.jobs != 2 || len(scheduler.cron.Entries()) != 2 {
		t.Fatalf("expected two jobs, got %d", scheduler.jobs)
	}
	if scheduler.Name() != "scheduler" {
		t.Fatalf("unexpected name: %s", scheduler.Name())
	}
}

func TestNewSchedulerServiceNilContainer(t *testing.T) {
	if _, err := NewSchedulerService(nil); err == nil {
		t.Fatalf("expected error for nil container")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	container, _ := setupWorkerTest(t, nil)
	scheduler, err := NewSchedulerService(container)
	if err != nil {
		t.Fatalf("new scheduler failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- scheduler.Start(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not return after cancel")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestSchedulerRunsJobsInProcessWithoutQueue(t *testing.T) {
	container, db := setupWorkerTest(t, nil)
	scheduler, err := NewSchedulerService(container)
	if err != nil {
		t.Fatalf("new scheduler failed: %v", err)
	}

	stale := models.VendorPayout{
		VendorID:  3,
		Amount:    models.MustMoney("60.00"),
		NetAmount: models.MustMoney("60.00"),
		Currency:  "USD",
		Status:    constants.PayoutStatusProcessing,
	}
	if err := db.Create(&stale).Error; err != nil {
		t.Fatalf("create payout failed: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := db.Model(&models.VendorPayout{}).Where("id = ?", stale.ID).Updates(map[string]interface{}{"created_at": old, "updated_at": old}).Error; err != nil {
		t.Fatalf("age payout failed: %v", err)
	}

	scheduler.runPayoutBatch()
	scheduler.runPayoutReconcile()

	var reloaded models.VendorPayout
	if err := db.First(&reloaded, stale.ID).Error; err != nil {
		t.Fatalf("reload payout failed: %v", err)
	}
	if reloaded.Status != constants.PayoutStatusProcessing {
		t.Fatalf("lookup error should leave payout processing, got %s", reloaded.Status)
	}
}
