//go:build integration
// +build integration

package broker

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"catalyst-trader/internal/config"
)

func TestClientIntegration_SnapshotAndTicker(t *testing.T) {
	configPath := os.Getenv("TRADER_CONFIG")
	if configPath == "" {
		configPath = "../../configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if !cfg.Broker.UseSandbox {
		t.Skip("broker.use_sandbox=false，出于安全考虑跳过真实接口测试")
	}
	if cfg.Broker.APIKey == "" || cfg.Broker.APISecret == "" {
		t.Skip("缺少券商凭证，跳过测试")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := NewClient(cfg.Broker, cfg.Budget.Currency, zap.NewNop())
	if err != nil {
		t.Fatalf("初始化券商客户端失败: %v", err)
	}

	cash, err := client.FetchCash(ctx)
	if err != nil {
		t.Fatalf("获取账户余额失败: %v", err)
	}
	if cash.Currency != cfg.Budget.Currency {
		t.Fatalf("余额币种不符: %s", cash.Currency)
	}

	holdings, err := client.FetchHoldings(ctx)
	if err != nil {
		t.Fatalf("获取持仓失败: %v", err)
	}
	t.Logf("持仓数量: %d", len(holdings))

	ticker, err := client.FetchTicker(ctx, "BTC")
	if err != nil {
		t.Fatalf("获取报价失败: %v", err)
	}
	if ticker.Bid <= 0 && ticker.Ask <= 0 && ticker.Last <= 0 {
		t.Fatalf("报价全部为零: %+v", ticker)
	}

	candles, err := client.FetchDailyCandles(ctx, "BTC", 30)
	if err != nil {
		t.Fatalf("获取日线失败: %v", err)
	}
	if len(candles) == 0 {
		t.Fatal("日线为空")
	}
}
