package provider

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/cache"
	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/events"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/queue"
	"github.com/dujiao-next/commission-engine/internal/repository"
	"github.com/dujiao-next/commission-engine/internal/service"

	"gorm.io/gorm"
)

const defaultLockTTL = 2 * time.Minute

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	EventSink   events.Sink
	EventRelay  events.Publisher
	Locker      service.VendorLocker

	// Repositories
	CatalogRepo    *repository.GormCatalogRepository
	RuleRepo       repository.CommissionRuleRepository
	CommissionRepo repository.VendorCommissionRepository
	PayoutRepo     repository.VendorPayoutRepository
	AccountRepo    repository.VendorAccountRepository
	SettingRepo    repository.SettingRepository

	// Services
	SettingService       *service.SettingService
	RuleResolver         *service.RuleResolver
	RuleService          *service.RuleService
	CommissionCalculator *service.CommissionCalculator
	CommissionService    *service.CommissionService
	TransferProvider     service.TransferProvider
	VendorAccountService *service.VendorAccountService
	PayoutAggregator     *service.PayoutAggregator
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	return NewContainerWithDB(cfg, models.DB, queueClient)
}

// NewContainerWithDB 使用指定连接构建容器（测试与工具命令复用）
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, queueClient *queue.Client) *Container {
	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories(db)

	// 2. 初始化事件投递与结算锁
	c.initEvents()
	c.initLocker()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.CatalogRepo = repository.NewCatalogRepository(db)
	c.RuleRepo = repository.NewCommissionRuleRepository(db)
	c.CommissionRepo = repository.NewVendorCommissionRepository(db)
	c.PayoutRepo = repository.NewVendorPayoutRepository(db)
	c.AccountRepo = repository.NewVendorAccountRepository(db)
	c.SettingRepo = repository.NewSettingRepository(db)
}

func (c *Container) initEvents() {
	logSink := events.NewLogSink()
	switch strings.ToLower(strings.TrimSpace(c.Config.Events.Sink)) {
	case constants.EventSinkQueue:
		if c.QueueClient.Enabled() {
			c.EventSink = events.NewQueueSink(c.QueueClient, logSink)
		} else {
			logger.Warnw("provider_event_queue_sink_unavailable", "fallback", constants.EventSinkLog)
			c.EventSink = logSink
		}
	default:
		c.EventSink = logSink
	}
}

// EnsureRelay 初始化事件转发目标（仅 worker 需要连接外部消息系统）
func (c *Container) EnsureRelay() error {
	if c == nil {
		return errors.New("container is nil")
	}
	if c.EventRelay != nil {
		return nil
	}
	relay, err := events.NewRelayPublisher(c.Config.Events)
	if err != nil {
		return err
	}
	c.EventRelay = relay
	return nil
}

func (c *Container) initLocker() {
	if cache.Enabled() {
		ttl := time.Duration(c.Config.Payout.LockTTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = defaultLockTTL
		}
		c.Locker = cache.NewRedisVendorLocker(cache.Client(), ttl)
		return
	}
	c.Locker = cache.NewLocalVendorLocker()
}

func (c *Container) initServices() {
	commissionDefaults := service.CommissionDefaultSetting(c.Config)
	c.SettingService = service.NewSettingService(c.SettingRepo, commissionDefaults)

	transfer, err := service.NewTransferProvider(c.Config.Transfer, c.AccountRepo)
	if err != nil {
		logger.Errorw("provider_init_transfer_failed", "provider", c.Config.Transfer.Provider, "error", err)
		transfer = service.DisabledTransferProvider{}
	}
	c.TransferProvider = transfer

	var verifier service.AccountVerifier
	if v, ok := transfer.(service.AccountVerifier); ok {
		verifier = v
	}

	c.RuleResolver = service.NewRuleResolver(c.RuleRepo, c.SettingService)
	c.RuleService = service.NewRuleService(c.RuleRepo, c.EventSink)
	c.CommissionCalculator = service.NewCommissionCalculator(c.CommissionRepo, c.CatalogRepo, c.RuleResolver, c.SettingService, c.EventSink)
	c.CommissionService = service.NewCommissionService(c.CommissionRepo, c.EventSink)
	c.VendorAccountService = service.NewVendorAccountService(c.AccountRepo, verifier)
	c.PayoutAggregator = service.NewPayoutAggregator(
		c.CommissionRepo,
		c.PayoutRepo,
		c.TransferProvider,
		c.SettingService,
		c.Locker,
		c.EventSink,
		service.PayoutAggregatorOptions{
			TransferTimeout: time.Duration(c.Config.Transfer.TimeoutSeconds) * time.Second,
			Concurrency:     c.Config.Payout.Concurrency,
		},
	)
}

// Close 释放外部连接
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.EventRelay != nil {
		errs = append(errs, c.EventRelay.Close())
	}
	if c.QueueClient != nil {
		errs = append(errs, c.QueueClient.Close())
	}
	errs = append(errs, cache.Close())
	return errors.Join(errs...)
}
