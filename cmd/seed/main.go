package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/events"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"
	"github.com/dujiao-next/commission-engine/internal/service"

	"github.com/shopspring/decimal"
)

type seedProduct struct {
	slug     string
	title    string
	category string
	vendorID uint
	price    string
}

type seedRule struct {
	name     string
	ruleType string
	target   func() *uint
	method   string
	value    string
	priority int
}

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.App.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 添加分类
	categories := []models.Category{
		{
			NameJSON: models.JSON(map[string]interface{}{
				"zh-CN": "电子产品",
				"en-US": "Electronics",
			}),
			Slug: "electronics",
		},
		{
			NameJSON: models.JSON(map[string]interface{}{
				"zh-CN": "生活用品",
				"en-US": "Lifestyle",
			}),
			Slug: "lifestyle",
		},
	}
	categoryIDs := map[string]uint{}
	for _, cat := range categories {
		var existing models.Category
		if err := models.DB.Where("slug = ?", cat.Slug).First(&existing).Error; err == nil {
			stdLog.Printf("Category already exists: %s", cat.Slug)
			categoryIDs[cat.Slug] = existing.ID
			continue
		}
		if err := models.DB.Create(&cat).Error; err != nil {
			stdLog.Printf("Failed to create category %s: %v", cat.Slug, err)
			continue
		}
		stdLog.Printf("Created category: %s", cat.Slug)
		categoryIDs[cat.Slug] = cat.ID
	}

	// 添加商品（vendorID 为 0 表示平台自营）
	products := []seedProduct{
		{slug: "wireless-earphones", title: "Wireless Bluetooth Earphones", category: "electronics", vendorID: 101, price: "99.99"},
		{slug: "smart-watch", title: "Smart Watch", category: "electronics", vendorID: 102, price: "249.00"},
		{slug: "ceramic-mug", title: "Ceramic Mug", category: "lifestyle", vendorID: 101, price: "18.50"},
		{slug: "gift-card", title: "Platform Gift Card", category: "lifestyle", price: "50.00"},
	}
	productIDs := map[string]uint{}
	for _, item := range products {
		var existing models.Product
		if err := models.DB.Where("slug = ?", item.slug).First(&existing).Error; err == nil {
			stdLog.Printf("Product already exists: %s", item.slug)
			productIDs[item.slug] = existing.ID
			continue
		}
		product := models.Product{
			Slug:        item.slug,
			TitleJSON:   models.JSON(map[string]interface{}{"en-US": item.title}),
			PriceAmount: models.MustMoney(item.price),
			CategoryID:  categoryIDs[item.category],
			IsActive:    true,
		}
		if item.vendorID != 0 {
			vendorID := item.vendorID
			product.VendorID = &vendorID
		}
		if err := models.DB.Create(&product).Error; err != nil {
			stdLog.Printf("Failed to create product %s: %v", item.slug, err)
			continue
		}
		stdLog.Printf("Created product: %s", item.slug)
		productIDs[item.slug] = product.ID
	}

	// 添加佣金规则
	ruleRepo := repository.NewCommissionRuleRepository(models.DB)
	ruleService := service.NewRuleService(ruleRepo, events.NewLogSink())
	rules := []seedRule{
		{name: "Platform default", ruleType: constants.CommissionRuleTypeGlobal, method: constants.CommissionMethodPercentage, value: "10", priority: 10},
		{name: "Electronics", ruleType: constants.CommissionRuleTypeCategory, target: idOf(categoryIDs, "electronics"), method: constants.CommissionMethodPercentage, value: "8", priority: 20},
		{name: "Vendor 102 contract", ruleType: constants.CommissionRuleTypeVendor, target: func() *uint { v := uint(102); return &v }, method: constants.CommissionMethodPercentage, value: "6.5", priority: 10},
		{name: "Ceramic mug flat fee", ruleType: constants.CommissionRuleTypeProduct, target: idOf(productIDs, "ceramic-mug"), method: constants.CommissionMethodFixed, value: "2", priority: 10},
	}
	ctx := context.Background()
	for _, item := range rules {
		var count int64
		if err := models.DB.Model(&models.CommissionRule{}).Where("name = ?", item.name).Count(&count).Error; err == nil && count > 0 {
			stdLog.Printf("Rule already exists: %s", item.name)
			continue
		}
		var target *uint
		if item.target != nil {
			target = item.target()
			if target == nil {
				stdLog.Printf("Skip rule %s: target not seeded", item.name)
				continue
			}
		}
		if _, err := ruleService.Create(ctx, service.CommissionRuleInput{
			Name:              item.name,
			RuleType:          item.ruleType,
			TargetID:          target,
			CalculationMethod: item.method,
			Value:             decimal.RequireFromString(item.value),
			Priority:          item.priority,
			Status:            constants.CommissionRuleStatusActive,
		}); err != nil {
			stdLog.Printf("Failed to create rule %s: %v", item.name, err)
			continue
		}
		stdLog.Printf("Created rule: %s", item.name)
	}

	// 绑定商家收款账户（不经渠道校验，仅用于本地演示）
	accountRepo := repository.NewVendorAccountRepository(models.DB)
	now := time.Now()
	for _, vendorID := range []uint{101, 102} {
		account := &models.VendorPayoutAccount{
			VendorID:       vendorID,
			Provider:       constants.TransferProviderStripe,
			AccountID:      fmt.Sprintf("acct_demo_%d", vendorID),
			Status:         constants.VendorAccountStatusConnected,
			PayoutsEnabled: true,
			ConnectedAt:    &now,
		}
		if err := accountRepo.Upsert(account); err != nil {
			stdLog.Printf("Failed to connect vendor %d: %v", vendorID, err)
			continue
		}
		stdLog.Printf("Connected payout account for vendor %d", vendorID)
	}

	// 添加已完成订单
	orderNo := "CE-DEMO-0001"
	var existingOrder models.Order
	if err := models.DB.Where("order_no = ?", orderNo).First(&existingOrder).Error; err == nil {
		stdLog.Printf("Order already exists: %s", orderNo)
		stdLog.Println("Seed completed")
		return
	}
	order := models.Order{
		OrderNo:     orderNo,
		UserID:      1,
		Status:      constants.OrderStatusCompleted,
		Currency:    cfg.Commission.Currency,
		CompletedAt: &now,
	}
	total := decimal.Zero
	lines := []struct {
		slug     string
		quantity int
	}{
		{slug: "wireless-earphones", quantity: 2},
		{slug: "smart-watch", quantity: 1},
		{slug: "ceramic-mug", quantity: 3},
		{slug: "gift-card", quantity: 1},
	}
	for _, line := range lines {
		productID, ok := productIDs[line.slug]
		if !ok {
			continue
		}
		var product models.Product
		if err := models.DB.First(&product, productID).Error; err != nil {
			stdLog.Printf("Failed to load product %s: %v", line.slug, err)
			continue
		}
		lineTotal := product.PriceAmount.Decimal.Mul(decimal.NewFromInt(int64(line.quantity)))
		total = total.Add(lineTotal)
		order.Items = append(order.Items, models.OrderItem{
			ProductID:  product.ID,
			ItemType:   constants.OrderItemTypeProduct,
			Quantity:   line.quantity,
			UnitPrice:  product.PriceAmount,
			TotalPrice: models.NewMoneyFromDecimal(lineTotal),
		})
	}
	shipping := decimal.RequireFromString("5.00")
	total = total.Add(shipping)
	order.Items = append(order.Items, models.OrderItem{
		ItemType:   constants.OrderItemTypeShipping,
		Quantity:   1,
		UnitPrice:  models.NewMoneyFromDecimal(shipping),
		TotalPrice: models.NewMoneyFromDecimal(shipping),
	})
	order.TotalAmount = models.NewMoneyFromDecimal(total)
	if err := models.DB.Create(&order).Error; err != nil {
		stdLog.Fatalf("Failed to create order: %v", err)
	}
	stdLog.Printf("Created order: %s (total %s)", order.OrderNo, order.TotalAmount.String())
	stdLog.Println("Seed completed")
}

func idOf(ids map[string]uint, key string) func() *uint {
	return func() *uint {
		id, ok := ids[key]
		if !ok || id == 0 {
			return nil
		}
		return &id
	}
}
