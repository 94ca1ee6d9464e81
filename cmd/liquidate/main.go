package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"catalyst-trader/internal/account"
	"catalyst-trader/internal/broker"
	"catalyst-trader/internal/config"
	"catalyst-trader/internal/execution"
	"catalyst-trader/internal/log"
	"catalyst-trader/internal/quote"
	"catalyst-trader/internal/risk"
)

// 对账户全部多头持仓提交清仓限价卖单。
// 默认只做检查演练，必须显式指定 -yes 才会真实下单。
func main() {
	var (
		configPath string
		confirm    bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.BoolVar(&confirm, "yes", false, "确认真实提交清仓卖单")
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

	symbols := make([]string, 0, len(snapshot.Positions))
	for symbol, pos := range snapshot.Positions {
		if pos.Quantity > 0 {
			symbols = append(symbols, symbol)
		}
	}
	if len(symbols) == 0 {
		logger.Info("无多头持仓，无需清仓")
		return
	}

	resolver := quote.NewResolver(client, cfg.Quote, logger)
	refs, err := resolver.ResolveAll(ctx, symbols)
	if err != nil {
		logger.Error("解析参考价失败", zap.Error(err))
		os.Exit(1)
	}

	orders := make([]risk.ValidatedOrder, 0, len(symbols))
	for _, symbol := range symbols {
		ref, ok := refs[symbol]
		if !ok {
			logger.Warn("无参考价，跳过清仓", zap.String("symbol", symbol))
			continue
		}
		limit := risk.LimitPrice("SELL", ref.Price, cfg.Policy.LimitBufferBps, cfg.Policy.PriceTick)
		orders = append(orders, risk.ValidatedOrder{
			Symbol:         symbol,
			Side:           "SELL",
			Quantity:       snapshot.Positions[symbol].Quantity,
			ReferencePrice: ref.Price,
			LimitPrice:     limit,
			Rationale:      "清仓指令",
		})
	}

	mode := execution.ModeCheck
	if confirm {
		mode = execution.ModeSubmit
	} else {
		logger.Info("未指定 -yes，仅做检查演练")
	}

	engine := execution.NewEngine(client, cfg.Execution, logger)
	results := engine.Execute(ctx, orders, mode)

	for _, result := range results {
		fmt.Printf("SELL %s ×%d @%.2f → %s %s\n",
			result.Order.Symbol, result.Order.Quantity, result.Order.LimitPrice, result.State, result.Note)
	}
}
