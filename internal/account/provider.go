package account

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"catalyst-trader/internal/broker"
	"catalyst-trader/internal/config"
)

type brokerClient interface {
	FetchCash(ctx context.Context) (broker.Cash, error)
	FetchHoldings(ctx context.Context) ([]broker.Holding, error)
}

// Provider 负责在每轮开始时采集账户快照并推导预算。
type Provider struct {
	client brokerClient
	cfg    config.BudgetConfig
	logger *zap.Logger
}

// NewProvider 创建账户快照采集器。
func NewProvider(client brokerClient, cfg config.BudgetConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Fetch 并行采集资金与持仓，组装为不可变快照。
func (p *Provider) Fetch(ctx context.Context) (Snapshot, error) {
	var (
		cash     broker.Cash
		holdings []broker.Holding
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		result, err := p.client.FetchCash(groupCtx)
		if err != nil {
			return err
		}
		cash = result
		return nil
	})
	group.Go(func() error {
		result, err := p.client.FetchHoldings(groupCtx)
		if err != nil {
			return err
		}
		holdings = result
		return nil
	})
	if err := group.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("account: 采集账户快照失败: %w", err)
	}

	positions := make(map[string]Position, len(holdings))
	for _, h := range holdings {
		symbol := broker.BaseSymbol(h.Symbol)
		if symbol == "" || h.Quantity == 0 {
			continue
		}

		qty := int64(math.Round(h.Quantity))
		if strings.EqualFold(h.Side, "SHORT") && qty > 0 {
			qty = -qty
		}

		positions[symbol] = Position{
			Quantity: qty,
			AvgCost:  h.AvgCost,
			Side:     strings.ToUpper(h.Side),
			Currency: h.Currency,
		}
	}

	snapshot := Snapshot{
		Cash:        cash,
		Positions:   positions,
		RetrievedAt: time.Now().UTC(),
	}

	p.logger.Info("账户快照已采集",
		zap.Float64("cash_free", cash.Free),
		zap.Float64("cash_total", cash.Total),
		zap.String("currency", cash.Currency),
		zap.Int("positions", snapshot.PositionCount()),
	)

	return snapshot, nil
}

// Budget 依据预算口径与上限系数推导本轮可支配资金。
// 可用资金为负时预算为 0，上层据此进入只卖模式。
func (p *Provider) Budget(snapshot Snapshot) float64 {
	base := snapshot.Cash.Free
	if strings.EqualFold(p.cfg.Tag, "total") {
		base = snapshot.Cash.Total
	}
	if base <= 0 {
		return 0
	}
	return base * p.cfg.MaxUtilization
}
