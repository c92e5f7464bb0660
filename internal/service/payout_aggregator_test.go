package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dujiao-next/commission-engine/internal/cache"
	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/payment/stripe"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type payoutFixture struct {
	db         *gorm.DB
	sink       *recordingSink
	transfer   *stubTransferProvider
	locker     *cache.LocalVendorLocker
	aggregator *PayoutAggregator
}

func newPayoutFixture(t *testing.T, setting StaticCommissionSetting, connected ...uint) *payoutFixture {
	t.Helper()
	transfer := newStubTransferProvider(connected...)
	return newPayoutFixtureWithProvider(t, setting, transfer, func(*gorm.DB) TransferProvider { return transfer })
}

func newPayoutFixtureWithProvider(t *testing.T, setting StaticCommissionSetting, stub *stubTransferProvider, build func(db *gorm.DB) TransferProvider) *payoutFixture {
	t.Helper()
	db := setupServiceTestDB(t)
	sink := &recordingSink{}
	locker := cache.NewLocalVendorLocker()
	aggregator := NewPayoutAggregator(
		repository.NewVendorCommissionRepository(db),
		repository.NewVendorPayoutRepository(db),
		build(db),
		setting,
		locker,
		sink,
		PayoutAggregatorOptions{Concurrency: 1, TransferTimeout: 2 * time.Second},
	)
	return &payoutFixture{db: db, sink: sink, transfer: stub, locker: locker, aggregator: aggregator}
}

func (f *payoutFixture) commission(t *testing.T, orderID, vendorID uint, amount, status string) models.VendorCommission {
	t.Helper()
	return createServiceTestCommission(t, f.db, orderID, 1, vendorID, amount, status)
}

func (f *payoutFixture) reload(t *testing.T, id uint) models.VendorCommission {
	t.Helper()
	var row models.VendorCommission
	if err := f.db.First(&row, id).Error; err != nil {
		t.Fatalf("reload commission failed: %v", err)
	}
	return row
}

func (f *payoutFixture) payouts(t *testing.T, vendorID uint) []models.VendorPayout {
	t.Helper()
	var rows []models.VendorPayout
	if err := f.db.Where("vendor_id = ?", vendorID).Order("id asc").Find(&rows).Error; err != nil {
		t.Fatalf("load payouts failed: %v", err)
	}
	return rows
}

func TestVendorsReadyForPayoutThreshold(t *testing.T) {
	f := newPayoutFixture(t, testCommissionSetting())
	f.commission(t, 1, 7, "10.00", constants.CommissionStatusApproved)
	f.commission(t, 2, 7, "15.00", constants.CommissionStatusApproved)
	f.commission(t, 3, 7, "30.00", constants.CommissionStatusApproved)
	f.commission(t, 4, 7, "100.00", constants.CommissionStatusPending)
	f.commission(t, 5, 8, "80.00", constants.CommissionStatusApproved)
	f.commission(t, 6, 9, "10.00", constants.CommissionStatusApproved)

	ready, err := f.aggregator.VendorsReadyForPayout(decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("list ready vendors failed: %v", err)
	}
	if len(ready) != 2 {
		t.Fatalf("expected vendors 8 and 7, got %+v", ready)
	}
	if ready[0].VendorID != 8 || ready[1].VendorID != 7 {
		t.Fatalf("expected descending totals, got %+v", ready)
	}
	if !ready[1].TotalAmount.Equal(decimal.NewFromInt(55)) || ready[1].CommissionCount != 3 {
		t.Fatalf("unexpected vendor 7 total: %+v", ready[1])
	}

	ready, err = f.aggregator.VendorsReadyForPayout(decimal.NewFromInt(60))
	if err != nil {
		t.Fatalf("list ready vendors failed: %v", err)
	}
	if len(ready) != 1 || ready[0].VendorID != 8 {
		t.Fatalf("vendor 7 must fall below 60, got %+v", ready)
	}
}

func TestProcessVendorPayoutSuccess(t *testing.T) {
	f := newPayoutFixture(t, testCommissionSetting(), 7)
	a := f.commission(t, 1, 7, "30.00", constants.CommissionStatusApproved)
	b := f.commission(t, 2, 7, "25.00", constants.CommissionStatusApproved)
	pending := f.commission(t, 3, 7, "40.00", constants.CommissionStatusPending)

	result, err := f.aggregator.ProcessVendorPayout(context.Background(), 7)
	if err != nil {
		t.Fatalf("payout failed: %v", err)
	}
	if result.Outcome != constants.PayoutOutcomeProcessed || result.Payout == nil {
		t.Fatalf("expected processed payout, got %+v", result)
	}
	payouts := f.payouts(t, 7)
	if len(payouts) != 1 {
		t.Fatalf("expected one payout, got %d", len(payouts))
	}
	payout := payouts[0]
	if payout.Status != constants.PayoutStatusCompleted || payout.TransferReference == nil || *payout.TransferReference != "tr_1" {
		t.Fatalf("unexpected payout: %+v", payout)
	}
	if !payout.Amount.Equal(decimal.NewFromInt(55)) || !payout.NetAmount.Equal(decimal.NewFromInt(55)) || !payout.FeeAmount.IsZero() {
		t.Fatalf("unexpected payout amounts: %+v", payout)
	}
	if payout.ProcessedAt == nil || len(payout.CommissionIDs) != 2 {
		t.Fatalf("expected processed_at and two commission ids: %+v", payout)
	}
	for _, id := range []uint{a.ID, b.ID} {
		row := f.reload(t, id)
		if row.Status != constants.CommissionStatusPaid || row.PayoutID == nil || *row.PayoutID != payout.ID {
			t.Fatalf("commission %d not settled: %+v", id, row)
		}
	}
	if row := f.reload(t, pending.ID); row.Status != constants.CommissionStatusPending || row.PayoutID != nil {
		t.Fatalf("pending commission must stay untouched: %+v", row)
	}
	req := f.transfer.requests[0]
	if req.IdempotencyKey != models.TransferGroupForPayout(payout.ID) || req.TransferGroup != req.IdempotencyKey {
		t.Fatalf("unexpected transfer idempotency: %+v", req)
	}
	if f.sink.count(constants.EventPayoutCompleted) != 1 {
		t.Fatalf("expected payout.completed, got %v", f.sink.names())
	}
}

func TestProcessVendorPayoutVendorBearsFee(t *testing.T) {
	setting := testCommissionSetting()
	setting.FeeHandling = constants.FeeHandlingVendor
	setting.PlatformFeePercent = 2.5
	f := newPayoutFixture(t, setting, 7)
	f.commission(t, 1, 7, "100.00", constants.CommissionStatusApproved)

	result, err := f.aggregator.ProcessVendorPayout(context.Background(), 7)
	if err != nil {
		t.Fatalf("payout failed: %v", err)
	}
	if !result.Payout.FeeAmount.Equal(decimal.RequireFromString("2.5")) || !result.Payout.NetAmount.Equal(decimal.RequireFromString("97.5")) {
		t.Fatalf("unexpected fee split: fee=%s net=%s", result.Payout.FeeAmount, result.Payout.NetAmount)
	}
	if !f.transfer.requests[0].Amount.Equal(decimal.RequireFromString("97.5")) {
		t.Fatalf("transfer must carry the net amount, got %s", f.transfer.requests[0].Amount)
	}
}

func TestProcessVendorPayoutDeclines(t *testing.T) {
	cases := []struct {
		name      string
		connected bool
		amounts   []string
		status    string
		want      string
	}{
		{name: "not connected", connected: false, amounts: []string{"100.00"}, status: constants.CommissionStatusApproved, want: constants.PayoutDeclineNotConnected},
		{name: "no approved commissions", connected: true, amounts: []string{"100.00"}, status: constants.CommissionStatusPending, want: constants.PayoutDeclineNoCommissions},
		{name: "below minimum", connected: true, amounts: []string{"20.00", "29.99"}, status: constants.CommissionStatusApproved, want: constants.PayoutDeclineBelowMinimum},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var connected []uint
			if tc.connected {
				connected = append(connected, 7)
			}
			f := newPayoutFixture(t, testCommissionSetting(), connected...)
			for i, amount := range tc.amounts {
				f.commission(t, uint(i+1), 7, amount, tc.status)
			}

			result, err := f.aggregator.ProcessVendorPayout(context.Background(), 7)
			if err != nil {
				t.Fatalf("decline must not be an error: %v", err)
			}
			if !result.Declined() || result.DeclineReason != tc.want {
				t.Fatalf("want decline %s, got %+v", tc.want, result)
			}
			if payouts := f.payouts(t, 7); len(payouts) != 0 {
				t.Fatalf("declined payout must not persist rows, got %d", len(payouts))
			}
			if f.transfer.requestCount() != 0 {
				t.Fatalf("declined payout must not call the provider")
			}
		})
	}
}

func TestProcessVendorPayoutDeclinedWhileLocked(t *testing.T) {
	f := newPayoutFixture(t, testCommissionSetting(), 7)
	f.commission(t, 1, 7, "100.00", constants.CommissionStatusApproved)

	release, acquired, err := f.locker.TryLock(context.Background(), 7)
	if err != nil || !acquired {
		t.Fatalf("acquire lock failed: %v %v", acquired, err)
	}
	result, err := f.aggregator.ProcessVendorPayout(context.Background(), 7)
	if err != nil {
		t.Fatalf("payout failed: %v", err)
	}
	if result.DeclineReason != constants.PayoutDeclineInProgress {
		t.Fatalf("expected in-progress decline, got %+v", result)
	}
	release()

	result, err = f.aggregator.ProcessVendorPayout(context.Background(), 7)
	if err != nil || result.Outcome != constants.PayoutOutcomeProcessed {
		t.Fatalf("expected payout after release: %+v %v", result, err)
	}
}

func TestProcessVendorPayoutFailureReleasesCommissions(t *testing.T) {
	f := newPayoutFixture(t, testCommissionSetting(), 7)
	row := f.commission(t, 1, 7, "60.00", constants.CommissionStatusApproved)
	f.transfer.failVendors[7] = ErrTransferFailed

	result, err := f.aggregator.ProcessVendorPayout(context.Background(), 7)
	if err != nil {
		t.Fatalf("failed transfer must be reported as outcome: %v", err)
	}
	if result.Outcome != constants.PayoutOutcomeFailed {
		t.Fatalf("expected failed outcome, got %+v", result)
	}
	payouts := f.payouts(t, 7)
	if len(payouts) != 1 || payouts[0].Status != constants.PayoutStatusFailed || payouts[0].ErrorMessage == "" {
		t.Fatalf("unexpected failed payout: %+v", payouts)
	}
	if reloaded := f.reload(t, row.ID); reloaded.Status != constants.CommissionStatusApproved || reloaded.PayoutID != nil {
		t.Fatalf("commission must be released: %+v", reloaded)
	}
	if f.sink.count(constants.EventPayoutFailed) != 1 {
		t.Fatalf("expected payout.failed, got %v", f.sink.names())
	}

	delete(f.transfer.failVendors, 7)
	result, err = f.aggregator.ProcessVendorPayout(context.Background(), 7)
	if err != nil || result.Outcome != constants.PayoutOutcomeProcessed {
		t.Fatalf("retry must create a new payout: %+v %v", result, err)
	}
	payouts = f.payouts(t, 7)
	if len(payouts) != 2 || payouts[1].Status != constants.PayoutStatusCompleted {
		t.Fatalf("expected a second completed payout, got %+v", payouts)
	}
	if reloaded := f.reload(t, row.ID); reloaded.Status != constants.CommissionStatusPaid || *reloaded.PayoutID != payouts[1].ID {
		t.Fatalf("commission must belong to the retry payout: %+v", reloaded)
	}
}

func TestProcessVendorPayoutUnknownOutcomeAndReconcile(t *testing.T) {
	f := newPayoutFixture(t, testCommissionSetting(), 7, 8)
	first := f.commission(t, 1, 7, "60.00", constants.CommissionStatusApproved)
	second := f.commission(t, 2, 8, "70.00", constants.CommissionStatusApproved)
	f.transfer.failVendors[7] = ErrTransferOutcomeUnknown
	f.transfer.failVendors[8] = context.DeadlineExceeded

	for _, vendorID := range []uint{7, 8} {
		result, err := f.aggregator.ProcessVendorPayout(context.Background(), vendorID)
		if err != nil {
			t.Fatalf("unknown outcome must not be an error: %v", err)
		}
		if result.Outcome != constants.PayoutOutcomePending || result.Payout.Status != constants.PayoutStatusProcessing {
			t.Fatalf("expected pending outcome, got %+v", result)
		}
	}
	if reloaded := f.reload(t, first.ID); reloaded.PayoutID == nil || reloaded.Status != constants.CommissionStatusApproved {
		t.Fatalf("commission must stay claimed while outcome is unknown: %+v", reloaded)
	}
	ready, err := f.aggregator.VendorsReadyForPayout(decimal.Zero)
	if err != nil || len(ready) != 0 {
		t.Fatalf("claimed commissions must not be offered again: %+v %v", ready, err)
	}

	vendor7Payout := f.payouts(t, 7)[0]
	f.transfer.lookup[vendor7Payout.TransferGroup()] = &TransferReceipt{Reference: "tr_late", Destination: "acct_7"}

	result, err := f.aggregator.ReconcileProcessingPayouts(context.Background(), 0)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Checked != 2 || result.Completed != 1 || result.Failed != 1 || result.Unresolved != 0 {
		t.Fatalf("unexpected reconcile result: %+v", result)
	}
	if payout := f.payouts(t, 7)[0]; payout.Status != constants.PayoutStatusCompleted || *payout.TransferReference != "tr_late" {
		t.Fatalf("vendor 7 payout must complete: %+v", payout)
	}
	if reloaded := f.reload(t, first.ID); reloaded.Status != constants.CommissionStatusPaid {
		t.Fatalf("vendor 7 commission must be paid: %+v", reloaded)
	}
	if payout := f.payouts(t, 8)[0]; payout.Status != constants.PayoutStatusFailed {
		t.Fatalf("vendor 8 payout must fail: %+v", payout)
	}
	if reloaded := f.reload(t, second.ID); reloaded.Status != constants.CommissionStatusApproved || reloaded.PayoutID != nil {
		t.Fatalf("vendor 8 commission must be released: %+v", reloaded)
	}
}

func TestReconcileKeepsPayoutsWhenLookupFails(t *testing.T) {
	f := newPayoutFixture(t, testCommissionSetting(), 7)
	f.commission(t, 1, 7, "60.00", constants.CommissionStatusApproved)
	f.transfer.failVendors[7] = ErrTransferOutcomeUnknown
	if _, err := f.aggregator.ProcessVendorPayout(context.Background(), 7); err != nil {
		t.Fatalf("payout failed: %v", err)
	}
	f.transfer.lookupErr = errors.New("provider unavailable")

	result, err := f.aggregator.ReconcileProcessingPayouts(context.Background(), 0)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Unresolved != 1 {
		t.Fatalf("expected unresolved payout, got %+v", result)
	}
	if payout := f.payouts(t, 7)[0]; payout.Status != constants.PayoutStatusProcessing {
		t.Fatalf("payout must stay processing, got %s", payout.Status)
	}
}

func TestProcessAllScheduledPayoutsTally(t *testing.T) {
	f := newPayoutFixture(t, testCommissionSetting(), 7, 8)
	f.commission(t, 1, 7, "100.00", constants.CommissionStatusApproved)
	f.commission(t, 2, 8, "90.00", constants.CommissionStatusApproved)
	f.commission(t, 3, 9, "80.00", constants.CommissionStatusApproved)
	f.commission(t, 4, 10, "10.00", constants.CommissionStatusApproved)
	f.transfer.failVendors[8] = ErrTransferFailed

	result, err := f.aggregator.ProcessAllScheduledPayouts(context.Background())
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if result.Processed != 1 || result.Failed != 1 || result.Skipped != 1 {
		t.Fatalf("unexpected tally: %+v", result)
	}
	if f.sink.count(constants.EventPayoutBatchProcessed) != 1 {
		t.Fatalf("expected payout.processed event, got %v", f.sink.names())
	}
	if payouts := f.payouts(t, 10); len(payouts) != 0 {
		t.Fatalf("vendor below minimum must not be attempted")
	}
}

func TestGetPayoutNotFound(t *testing.T) {
	f := newPayoutFixture(t, testCommissionSetting())
	if _, err := f.aggregator.GetPayout(404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.aggregator.ProcessVendorPayout(context.Background(), 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for vendor 0, got %v", err)
	}
}

// newFlakyStripeServer 按收款账户模拟渠道的各种异常响应
func newFlakyStripeServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/transfers" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"unexpected"}}`))
			return
		}
		_ = r.ParseForm()
		hits.Add(1)
		switch r.PostForm.Get("destination") {
		case "acct_drop":
			conn, _, err := w.(http.Hijacker).Hijack()
			if err != nil {
				t.Errorf("hijack failed: %v", err)
				return
			}
			_ = conn.Close()
		case "acct_5xx":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"try again"}}`))
		case "acct_html":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`<html>502 Bad Gateway</html>`))
		case "acct_hang":
			select {
			case <-r.Context().Done():
			case <-time.After(3 * time.Second):
			}
		case "acct_rejected":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"insufficient available balance"}}`))
		default:
			_, _ = w.Write([]byte(`{"id":"tr_ok","amount":6000,"currency":"usd","destination":"` + r.PostForm.Get("destination") + `"}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newStripePayoutFixture(t *testing.T, destination string) (*payoutFixture, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	server := newFlakyStripeServer(t, hits)
	f := newPayoutFixtureWithProvider(t, testCommissionSetting(), nil, func(db *gorm.DB) TransferProvider {
		accounts := repository.NewVendorAccountRepository(db)
		connectTestAccount(t, accounts, 7, destination, true)
		return NewStripeTransferProvider(&stripe.Config{SecretKey: "sk_test", APIBaseURL: server.URL}, accounts)
	})
	return f, hits
}

func TestProcessVendorPayoutAmbiguousTransferKeepsCommissionsClaimed(t *testing.T) {
	cases := []struct {
		name        string
		destination string
		cancelAfter time.Duration
	}{
		{name: "connection dropped after send", destination: "acct_drop"},
		{name: "provider 5xx", destination: "acct_5xx"},
		{name: "non json gateway error", destination: "acct_html"},
		{name: "caller canceled", destination: "acct_hang", cancelAfter: 50 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, hits := newStripePayoutFixture(t, tc.destination)
			row := f.commission(t, 1, 7, "60.00", constants.CommissionStatusApproved)

			ctx := context.Background()
			if tc.cancelAfter > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithCancel(ctx)
				timer := time.AfterFunc(tc.cancelAfter, cancel)
				defer timer.Stop()
			}
			result, err := f.aggregator.ProcessVendorPayout(ctx, 7)
			if err != nil {
				t.Fatalf("unknown outcome must not be an error: %v", err)
			}
			if result.Outcome != constants.PayoutOutcomePending {
				t.Fatalf("expected pending outcome, got %+v", result)
			}
			payouts := f.payouts(t, 7)
			if len(payouts) != 1 || payouts[0].Status != constants.PayoutStatusProcessing || payouts[0].ErrorMessage == "" {
				t.Fatalf("payout must stay processing with a note: %+v", payouts)
			}
			if reloaded := f.reload(t, row.ID); reloaded.PayoutID == nil || *reloaded.PayoutID != payouts[0].ID {
				t.Fatalf("commission must stay claimed: %+v", reloaded)
			}
			if f.sink.count(constants.EventPayoutFailed) != 0 {
				t.Fatalf("unknown outcome must not emit payout.failed: %v", f.sink.names())
			}

			sent := hits.Load()
			retry, err := f.aggregator.ProcessVendorPayout(context.Background(), 7)
			if err != nil {
				t.Fatalf("retry failed: %v", err)
			}
			if retry.DeclineReason != constants.PayoutDeclineNoCommissions {
				t.Fatalf("claimed commissions must not be paid twice, got %+v", retry)
			}
			if hits.Load() != sent || len(f.payouts(t, 7)) != 1 {
				t.Fatalf("retry must not send another transfer: hits=%d payouts=%d", hits.Load(), len(f.payouts(t, 7)))
			}
		})
	}
}

func TestProcessVendorPayoutRejectedTransferReleasesCommissions(t *testing.T) {
	f, _ := newStripePayoutFixture(t, "acct_rejected")
	row := f.commission(t, 1, 7, "60.00", constants.CommissionStatusApproved)

	result, err := f.aggregator.ProcessVendorPayout(context.Background(), 7)
	if err != nil {
		t.Fatalf("payout failed: %v", err)
	}
	if result.Outcome != constants.PayoutOutcomeFailed {
		t.Fatalf("expected failed outcome, got %+v", result)
	}
	if reloaded := f.reload(t, row.ID); reloaded.Status != constants.CommissionStatusApproved || reloaded.PayoutID != nil {
		t.Fatalf("commission must be released after a definite rejection: %+v", reloaded)
	}
}

// blockingTransferProvider 在转账调用中阻塞，直到测试放行
type blockingTransferProvider struct {
	*stubTransferProvider
	started chan struct{}
	proceed chan struct{}
}

func (p *blockingTransferProvider) CreateTransfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error) {
	close(p.started)
	<-p.proceed
	return p.stubTransferProvider.CreateTransfer(ctx, req)
}

func TestReconcileSkipsPayoutWithTransferInFlight(t *testing.T) {
	stub := newStubTransferProvider(7)
	blocking := &blockingTransferProvider{
		stubTransferProvider: stub,
		started:              make(chan struct{}),
		proceed:              make(chan struct{}),
	}
	f := newPayoutFixtureWithProvider(t, testCommissionSetting(), stub, func(*gorm.DB) TransferProvider { return blocking })
	row := f.commission(t, 1, 7, "60.00", constants.CommissionStatusApproved)

	type payoutCall struct {
		result *PayoutResult
		err    error
	}
	done := make(chan payoutCall, 1)
	go func() {
		result, err := f.aggregator.ProcessVendorPayout(context.Background(), 7)
		done <- payoutCall{result: result, err: err}
	}()
	<-blocking.started

	reconciled, err := f.aggregator.ReconcileProcessingPayouts(context.Background(), 0)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if reconciled.Checked != 1 || reconciled.Unresolved != 1 || reconciled.Failed != 0 {
		t.Fatalf("in-flight payout must stay unresolved, got %+v", reconciled)
	}
	if payout := f.payouts(t, 7)[0]; payout.Status != constants.PayoutStatusProcessing {
		t.Fatalf("in-flight payout must stay processing, got %s", payout.Status)
	}

	close(blocking.proceed)
	call := <-done
	if call.err != nil || call.result.Outcome != constants.PayoutOutcomeProcessed {
		t.Fatalf("expected processed payout, got %+v %v", call.result, call.err)
	}
	if payout := f.payouts(t, 7)[0]; payout.Status != constants.PayoutStatusCompleted {
		t.Fatalf("payout must complete, got %s", payout.Status)
	}
	if reloaded := f.reload(t, row.ID); reloaded.Status != constants.CommissionStatusPaid {
		t.Fatalf("commission must be paid: %+v", reloaded)
	}
}

func TestCompletePayoutRejectsFinishedPayout(t *testing.T) {
	f := newPayoutFixture(t, testCommissionSetting(), 7)
	f.commission(t, 1, 7, "60.00", constants.CommissionStatusApproved)
	f.transfer.failVendors[7] = ErrTransferFailed
	if _, err := f.aggregator.ProcessVendorPayout(context.Background(), 7); err != nil {
		t.Fatalf("payout failed: %v", err)
	}
	payout := f.payouts(t, 7)[0]
	if payout.Status != constants.PayoutStatusFailed {
		t.Fatalf("expected failed payout, got %s", payout.Status)
	}

	err := f.aggregator.completePayout(context.Background(), &payout, &TransferReceipt{Reference: "tr_late"})
	if !errors.Is(err, ErrPayoutNotProcessing) {
		t.Fatalf("expected not processing error, got %v", err)
	}
	if f.sink.count(constants.EventPayoutCompleted) != 0 {
		t.Fatalf("finished payout must not emit payout.completed: %v", f.sink.names())
	}
	if err := f.aggregator.failPayout(context.Background(), &payout, "again"); !errors.Is(err, ErrPayoutNotProcessing) {
		t.Fatalf("expected not processing error on second fail, got %v", err)
	}
}

func TestReconcileSkipsPayoutFinishedElsewhere(t *testing.T) {
	f := newPayoutFixture(t, testCommissionSetting(), 7)
	f.commission(t, 1, 7, "60.00", constants.CommissionStatusApproved)
	f.transfer.failVendors[7] = ErrTransferOutcomeUnknown
	if _, err := f.aggregator.ProcessVendorPayout(context.Background(), 7); err != nil {
		t.Fatalf("payout failed: %v", err)
	}
	payout := f.payouts(t, 7)[0]
	if err := f.db.Model(&models.VendorPayout{}).Where("id = ?", payout.ID).Update("status", constants.PayoutStatusCompleted).Error; err != nil {
		t.Fatalf("update payout failed: %v", err)
	}

	skipped := f.aggregator.reconcilePayout(context.Background(), &payout)
	if skipped != reconcileSkipped {
		t.Fatalf("expected finished payout to be skipped, got %v", skipped)
	}
}
