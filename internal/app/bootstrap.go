package app

import (
	"errors"
	"fmt"

	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/provider"
	"github.com/dujiao-next/commission-engine/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, container *provider.Container, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if container == nil {
		return nil, errors.New("container is nil")
	}

	var services []Service
	switch mode {
	case ModeAll, ModeWorker, ModeScheduler:
	default:
		return nil, fmt.Errorf("unsupported mode: %s", mode)
	}

	// 初始化 Worker 服务；all 模式下队列未启用时由调度器在进程内执行
	if mode == ModeAll || mode == ModeWorker {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		switch {
		case err == nil:
			services = append(services, workerService)
		case mode == ModeWorker:
			return nil, err
		default:
			logger.Warnw("app_worker_skipped", "error", err)
		}
	}

	// 初始化定时结算服务
	if mode == ModeAll || mode == ModeScheduler {
		schedulerService, err := worker.NewSchedulerService(container)
		switch {
		case err == nil:
			services = append(services, schedulerService)
		case mode == ModeScheduler:
			return nil, err
		default:
			logger.Warnw("app_scheduler_skipped", "error", err)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}

	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	container := provider.NewContainer(opts.Config)
	defer func() {
		if err := container.Close(); err != nil {
			opts.Logger.Warnw("app_container_close_failed", "error", err)
		}
	}()

	runner, err := BuildRunner(opts.Config, container, opts.Mode)
	if err != nil {
		return err
	}

	opts.Logger.Infow("app_start", "mode", opts.Mode, "services", len(runner.services))
	return RunWithOptions(runner, opts)
}
