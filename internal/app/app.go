package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"catalyst-trader/internal/config"
	"catalyst-trader/internal/execution"
	"catalyst-trader/internal/store"
)

// Options 来自命令行：执行模式、关注方向与单次运行开关。
type Options struct {
	Mode  execution.Mode
	Focus string
	Once  bool
}

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	opts   Options
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store, opts Options) *App {
	if opts.Mode == "" {
		opts.Mode = execution.ModeCheck
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		opts:   opts,
	}
}

// Run 驱动主业务循环，直至上下文取消。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("broker", a.cfg.Broker.Name),
		zap.String("currency", a.cfg.Budget.Currency),
		zap.String("mode", string(a.opts.Mode)),
	)

	orch, err := newOrchestrator(a.cfg, a.logger, a.store, a.opts.Mode, a.opts.Focus)
	if err != nil {
		return err
	}

	if a.cfg.Monitor.Port > 0 {
		if err := startMonitorServer(ctx, orch.Audit(), a.cfg.Monitor.Port, a.logger); err != nil {
			return err
		}
	}

	if err = orch.Tick(ctx); err != nil {
		a.logger.Error("首次执行失败", zap.Error(err))
		if a.opts.Once {
			return err
		}
	}
	if a.opts.Once {
		return nil
	}

	loopInterval := a.cfg.Scheduler.LoopInterval
	if loopInterval <= 0 {
		loopInterval = time.Hour
	}

	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
			if err = orch.Tick(ctx); err != nil {
				a.logger.Error("执行调度失败", zap.Error(err))
			}
		}
	}
}
