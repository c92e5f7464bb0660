package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/events"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:commission_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrateWith(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func testCommissionSetting() StaticCommissionSetting {
	return StaticCommissionSetting{
		DefaultRate:   10,
		MinimumPayout: 50,
		FeeHandling:   constants.FeeHandlingPlatform,
		TriggerStatus: constants.OrderStatusCompleted,
		Currency:      "USD",
	}
}

// recordingSink 记录事件用于断言
type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Publish(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.events))
	for _, event := range s.events {
		names = append(names, event.Name)
	}
	return names
}

func (s *recordingSink) count(name string) int {
	total := 0
	for _, n := range s.names() {
		if n == name {
			total++
		}
	}
	return total
}

// stubTransferProvider 可按商家配置结果的转账渠道
type stubTransferProvider struct {
	mu           sync.Mutex
	connected    map[uint]bool
	failVendors  map[uint]error
	requests     []TransferRequest
	lookup       map[string]*TransferReceipt
	lookupErr    error
	nextRefIndex int
}

func newStubTransferProvider(connected ...uint) *stubTransferProvider {
	stub := &stubTransferProvider{
		connected:   map[uint]bool{},
		failVendors: map[uint]error{},
		lookup:      map[string]*TransferReceipt{},
	}
	for _, vendorID := range connected {
		stub.connected[vendorID] = true
	}
	return stub
}

func (p *stubTransferProvider) IsDestinationConnected(_ context.Context, vendorID uint) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected[vendorID], nil
}

func (p *stubTransferProvider) CreateTransfer(_ context.Context, req TransferRequest) (*TransferReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if err, ok := p.failVendors[req.VendorID]; ok {
		return nil, err
	}
	p.nextRefIndex++
	return &TransferReceipt{
		Reference:   fmt.Sprintf("tr_%d", p.nextRefIndex),
		Destination: fmt.Sprintf("acct_%d", req.VendorID),
		Amount:      req.Amount,
		Currency:    req.Currency,
	}, nil
}

func (p *stubTransferProvider) LookupTransfer(_ context.Context, transferGroup string) (*TransferReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lookupErr != nil {
		return nil, p.lookupErr
	}
	return p.lookup[transferGroup], nil
}

func (p *stubTransferProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type serviceTestCatalog struct {
	db      *gorm.DB
	catalog *repository.GormCatalogRepository
}

func newServiceTestCatalog(db *gorm.DB) *serviceTestCatalog {
	return &serviceTestCatalog{db: db, catalog: repository.NewCatalogRepository(db)}
}

func (c *serviceTestCatalog) category(t *testing.T, slug string) models.Category {
	t.Helper()
	row := models.Category{Slug: slug, NameJSON: models.JSON{"en-US": slug}}
	if err := c.db.Create(&row).Error; err != nil {
		t.Fatalf("create category failed: %v", err)
	}
	return row
}

func (c *serviceTestCatalog) product(t *testing.T, slug string, vendorID uint, categories ...models.Category) models.Product {
	t.Helper()
	row := models.Product{
		Slug:        slug,
		TitleJSON:   models.JSON{"en-US": slug},
		PriceAmount: models.MustMoney("100.00"),
		IsActive:    true,
		Categories:  categories,
	}
	if vendorID != 0 {
		row.VendorID = &vendorID
	}
	if len(categories) > 0 {
		row.CategoryID = categories[0].ID
	}
	if err := c.db.Create(&row).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return row
}

type testOrderLine struct {
	productID uint
	itemType  string
	amount    string
}

func (c *serviceTestCatalog) order(t *testing.T, total string, lines ...testOrderLine) models.Order {
	t.Helper()
	order := models.Order{
		OrderNo:     fmt.Sprintf("CE-%d", time.Now().UnixNano()),
		Status:      constants.OrderStatusCompleted,
		Currency:    "USD",
		TotalAmount: models.MustMoney(total),
	}
	for _, line := range lines {
		itemType := line.itemType
		if itemType == "" {
			itemType = constants.OrderItemTypeProduct
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID:  line.productID,
			ItemType:   itemType,
			Quantity:   1,
			UnitPrice:  models.MustMoney(line.amount),
			TotalPrice: models.MustMoney(line.amount),
		})
	}
	if err := c.db.Create(&order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func createServiceTestRule(t *testing.T, db *gorm.DB, ruleType string, targetID *uint, method string, value string, priority int) models.CommissionRule {
	t.Helper()
	rule := models.CommissionRule{
		Name:              ruleType + " test rule",
		RuleType:          ruleType,
		TargetID:          targetID,
		CalculationMethod: method,
		Value:             decimal.RequireFromString(value),
		Priority:          priority,
		Status:            constants.CommissionRuleStatusActive,
	}
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("create rule failed: %v", err)
	}
	return rule
}

func createServiceTestCommission(t *testing.T, db *gorm.DB, orderID, itemID, vendorID uint, amount, status string) models.VendorCommission {
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

func uintPtr(v uint) *uint {
	return &v
}
