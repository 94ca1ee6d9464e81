package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"catalyst-trader/internal/account"
	"catalyst-trader/internal/broker"
	"catalyst-trader/internal/config"
	"catalyst-trader/internal/log"
)

// 导出当前账户快照为 JSON，便于人工核对或下游处理。
func main() {
	var (
		configPath string
		outPath    string
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.StringVar(&outPath, "out", "", "输出文件路径，为空时写到标准输出")
	flag.Parse()

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
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := broker.NewClient(cfg.Broker, cfg.Budget.Currency, logger)
	if err != nil {
		logger.Error("初始化券商客户端失败", zap.Error(err))
		os.Exit(1)
	}

	provider := account.NewProvider(client, cfg.Budget, logger)
	snapshot, err := provider.Fetch(ctx)
	if err != nil {
		logger.Error("采集账户快照失败", zap.Error(err))
		os.Exit(1)
	}

	doc := struct {
		ExportedAt time.Time        `json:"exported_at"`
		Budget     float64          `json:"budget"`
		Snapshot   account.Snapshot `json:"snapshot"`
	}{
		ExportedAt: time.Now().UTC(),
		Budget:     provider.Budget(snapshot),
		Snapshot:   snapshot,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		logger.Error("序列化快照失败", zap.Error(err))
		os.Exit(1)
	}

	if outPath == "" {
		fmt.Println(string(data))
		return
	}

	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		logger.Error("写入输出文件失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("账户快照已导出", zap.String("path", outPath))
}
