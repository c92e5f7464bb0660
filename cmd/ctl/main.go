package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/provider"
	"github.com/dujiao-next/commission-engine/internal/queue"
	"github.com/dujiao-next/commission-engine/internal/service"

	"github.com/shopspring/decimal"
)

const usage = `用法: ctl <command> [flags]

commands:
  order-status  -order ID -status STATUS   推送订单状态变更（队列未启用时直接执行）
  refund        -order ID -amount AMOUNT   推送订单退款（队列未启用时直接执行）
  recalculate   -order ID [-force]         重新计算订单佣金
  preview       -order ID                  预览订单佣金（不落库）
  approve       -ids 1,2,3                 审核佣金
  payout        -vendor ID                 结算单个商家（队列未启用时直接执行）
  payout-all                               批量结算所有达标商家
  reconcile     [-older-than 30m]          对账处理中的结算单
  balance       -vendor ID                 查询商家佣金余额
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	logger.Init(cfg.App.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}

	container := provider.NewContainer(cfg)
	result, err := run(context.Background(), container, os.Args[1], os.Args[2:])
	if closeErr := container.Close(); closeErr != nil {
		logger.Warnw("ctl_container_close_failed", "error", closeErr)
	}
	if err != nil {
		stdLog.Fatalf("%s 执行失败: %v", os.Args[1], err)
	}
	printJSON(result)
}

func run(ctx context.Context, c *provider.Container, command string, args []string) (interface{}, error) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	orderID := fs.Uint("order", 0, "订单ID")
	vendorID := fs.Uint("vendor", 0, "商家ID")
	status := fs.String("status", "", "订单状态")
	amount := fs.String("amount", "", "退款金额")
	force := fs.Bool("force", false, "强制重算（删除未结算佣金）")
	ids := fs.String("ids", "", "佣金ID，逗号分隔")
	olderThan := fs.Duration("older-than", time.Duration(c.Config.Payout.ReconcileAfterMinutes)*time.Minute, "处理中超过该时长的结算单")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch command {
	case "order-status":
		if c.QueueClient.Enabled() {
			return enqueued(c.QueueClient.EnqueueOrderStatusChanged(ctx, queue.OrderStatusChangedPayload{
				OrderID: *orderID,
				Status:  strings.ToLower(strings.TrimSpace(*status)),
			}))
		}
		return map[string]string{"result": "done"}, c.CommissionCalculator.HandleOrderStatusChanged(ctx, *orderID, strings.ToLower(strings.TrimSpace(*status)))
	case "refund":
		refund, err := decimal.NewFromString(strings.TrimSpace(*amount))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", service.ErrRefundAmountInvalid, err)
		}
		if c.QueueClient.Enabled() {
			return enqueued(c.QueueClient.EnqueueOrderRefunded(ctx, queue.OrderRefundedPayload{
				OrderID:      *orderID,
				RefundAmount: refund.String(),
			}))
		}
		affected, err := c.CommissionCalculator.HandleRefund(ctx, *orderID, refund)
		return map[string]int64{"affected": affected}, err
	case "recalculate":
		created, err := c.CommissionCalculator.RecalculateOrder(ctx, *orderID, *force)
		return map[string]interface{}{"created": created}, err
	case "preview":
		return c.CommissionCalculator.PreviewOrderCommissions(ctx, *orderID)
	case "approve":
		parsed, err := parseIDs(*ids)
		if err != nil {
			return nil, err
		}
		affected, err := c.CommissionService.BulkApprove(ctx, parsed)
		return map[string]int64{"affected": affected}, err
	case "payout":
		if c.QueueClient.Enabled() {
			return enqueued(c.QueueClient.EnqueueVendorPayout(ctx, queue.VendorPayoutPayload{VendorID: *vendorID}))
		}
		return c.PayoutAggregator.ProcessVendorPayout(ctx, *vendorID)
	case "payout-all":
		return c.PayoutAggregator.ProcessAllScheduledPayouts(ctx)
	case "reconcile":
		return c.PayoutAggregator.ReconcileProcessingPayouts(ctx, *olderThan)
	case "balance":
		return c.CommissionService.VendorBalance(*vendorID)
	default:
		return nil, fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func enqueued(err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	return map[string]string{"result": "enqueued"}, nil
}

func parseIDs(raw string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var id uint
		if _, err := fmt.Sscanf(part, "%d", &id); err != nil || id == 0 {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("ids is empty")
	}
	return ids, nil
}

func printJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
}
