package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"catalyst-trader/internal/app"
	"catalyst-trader/internal/config"
	"catalyst-trader/internal/execution"
	"catalyst-trader/internal/log"
	"catalyst-trader/internal/store"
)

func main() {
	var (
		configPath string
		checkMode  bool
		submitMode bool
		focusQuery string
		runOnce    bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.BoolVar(&checkMode, "check", false, "检查模式：完成全部校验但不提交订单（默认）")
	flag.BoolVar(&submitMode, "submit", false, "提交模式：向券商真实下单")
	flag.StringVar(&focusQuery, "query", "", "本轮关注方向，原样传递给交易顾问")
	flag.BoolVar(&runOnce, "once", false, "仅执行一个周期后退出")
	flag.Parse()

	if checkMode && submitMode {
		fmt.Fprintln(os.Stderr, "-check 与 -submit 不能同时指定")
		os.Exit(1)
	}
	mode := execution.ModeCheck
	if submitMode {
		mode = execution.ModeSubmit
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	tradingApp := app.New(cfg, logger, sqliteStore, app.Options{
		Mode:  mode,
		Focus: focusQuery,
		Once:  runOnce,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tradingApp.Run(ctx); err != nil {
		logger.Error("系统运行异常", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("系统已安全退出")
}
