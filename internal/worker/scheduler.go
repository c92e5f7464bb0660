package worker

import (
	"context"
	"errors"
	"strings"

	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/provider"
	"github.com/dujiao-next/commission-engine/internal/queue"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	defaultReconcileAfterMinutes = 30

	schedulerTriggeredBy = "scheduler"
)

// SchedulerService 定时结算与对账服务
type SchedulerService struct {
	name      string
	cron      *cron.Cron
	container *provider.Container
	jobs      int
}

// NewSchedulerService 创建定时任务服务
func NewSchedulerService(c *provider.Container) (*SchedulerService, error) {
	if c == nil || c.Config == nil {
		return nil, errors.New("container is nil")
	}
	cronLogger := cronLogAdapter{log: logger.Named("scheduler")}
	s := &SchedulerService{
		name:      "scheduler",
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger)), cron.WithLogger(cronLogger)),
		container: c,
	}
	s.addJob("payout_batch", c.Config.Payout.Schedule, s.runPayoutBatch)
	s.addJob("payout_reconcile", c.Config.Payout.ReconcileSchedule, s.runPayoutReconcile)
	if s.jobs == 0 {
		return nil, errors.New("no scheduled jobs configured")
	}
	return s, nil
}

func (s *SchedulerService) addJob(job, spec string, fn func()) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		logger.Infow("scheduler_job_disabled", "job", job)
		return
	}
	if _, err := s.cron.AddFunc(spec, fn); err != nil {
		logger.Errorw("scheduler_job_add_failed", "job", job, "schedule", spec, "error", err)
		return
	}
	s.jobs++
	logger.Infow("scheduler_job_added", "job", job, "schedule", spec)
}

// Name 服务名称
func (s *SchedulerService) Name() string {
	if s == nil || s.name == "" {
		return "scheduler"
	}
	return s.name
}

// Start 启动定时器并阻塞至上下文结束
func (s *SchedulerService) Start(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return errors.New("scheduler not initialized")
	}
	s.cron.Start()
	<-ctx.Done()
	return nil
}

// Stop 停止定时器并等待运行中的任务结束
func (s *SchedulerService) Stop(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runPayoutBatch 队列可用时投递任务，否则在当前进程直接执行
func (s *SchedulerService) runPayoutBatch() {
	ctx := context.Background()
	c := s.container
	if c.QueueClient.Enabled() {
		if err := c.QueueClient.EnqueuePayoutBatch(ctx, queue.PayoutBatchPayload{TriggeredBy: schedulerTriggeredBy}); err != nil {
			logger.Warnw("scheduler_payout_batch_enqueue_failed", "error", err)
		}
		return
	}
	if c.PayoutAggregator == nil {
		return
	}
	result, err := c.PayoutAggregator.ProcessAllScheduledPayouts(ctx)
	if err != nil {
		logger.Warnw("scheduler_payout_batch_failed", "error", err)
		return
	}
	logger.Infow("scheduler_payout_batch_done",
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
}

func (s *SchedulerService) runPayoutReconcile() {
	ctx := context.Background()
	c := s.container
	minutes := c.Config.Payout.ReconcileAfterMinutes
	if c.QueueClient.Enabled() {
		if err := c.QueueClient.EnqueuePayoutReconcile(ctx, queue.PayoutReconcilePayload{OlderThanMinutes: minutes}); err != nil {
			logger.Warnw("scheduler_payout_reconcile_enqueue_failed", "error", err)
		}
		return
	}
	if c.PayoutAggregator == nil {
		return
	}
	olderThan := (&Consumer{Container: c}).reconcileAfter(minutes)
	result, err := c.PayoutAggregator.ReconcileProcessingPayouts(ctx, olderThan)
	if err != nil {
		logger.Warnw("scheduler_payout_reconcile_failed", "error", err)
		return
	}
	logger.Infow("scheduler_payout_reconcile_done",
		"checked", result.Checked,
		"completed", result.Completed,
		"failed", result.Failed,
		"unresolved", result.Unresolved,
		"skipped", result.Skipped,
	)
}

// cronLogAdapter 将 cron 日志接入 zap
type cronLogAdapter struct {
	log *zap.SugaredLogger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.log.Debugw("cron_"+strings.ReplaceAll(msg, " ", "_"), keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.log.Errorw("cron_"+strings.ReplaceAll(msg, " ", "_"), append(keysAndValues, "error", err)...)
}
