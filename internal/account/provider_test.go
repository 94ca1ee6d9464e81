package account

import (
	"context"
	"errors"
	"strings"
	"testing"

	"catalyst-trader/internal/broker"
	"catalyst-trader/internal/config"
)

type fakeBroker struct {
	cash        broker.Cash
	holdings    []broker.Holding
	cashErr     error
	holdingsErr error
}

func (f *fakeBroker) FetchCash(ctx context.Context) (broker.Cash, error) {
	return f.cash, f.cashErr
}

func (f *fakeBroker) FetchHoldings(ctx context.Context) ([]broker.Holding, error) {
	return f.holdings, f.holdingsErr
}

func TestProviderFetchBuildsSnapshot(t *testing.T) {
	client := &fakeBroker{
		cash: broker.Cash{Free: 1200, Total: 1500, Currency: "EUR"},
		holdings: []broker.Holding{
			{Symbol: "NVDA/EUR:EUR", Quantity: 10, AvgCost: 95.5, Side: "LONG", Currency: "EUR"},
			{Symbol: "ASML", Quantity: 3, AvgCost: 610, Side: "SHORT", Currency: "EUR"},
			{Symbol: "SAP", Quantity: 0},
		},
	}

	provider := NewProvider(client, config.BudgetConfig{Tag: "free", Currency: "EUR", MaxUtilization: 0.80}, nil)

	snapshot, err := provider.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch 返回错误: %v", err)
	}

	if len(snapshot.Positions) != 2 {
		t.Fatalf("期望2个非零持仓，实际 %d", len(snapshot.Positions))
	}
	if got := snapshot.Quantity("NVDA"); got != 10 {
		t.Fatalf("NVDA 数量期望10，实际 %d", got)
	}
	if got := snapshot.Quantity("ASML"); got != -3 {
		t.Fatalf("空头 ASML 数量期望-3，实际 %d", got)
	}
	if !snapshot.HasShort() {
		t.Fatal("期望检测到空头持仓")
	}
	if snapshot.RetrievedAt.IsZero() {
		t.Fatal("快照时间不应为零值")
	}
}

func TestProviderBudgetSelectsTag(t *testing.T) {
	snapshot := Snapshot{Cash: broker.Cash{Free: 1000, Total: 2000, Currency: "EUR"}}

	free := NewProvider(nil, config.BudgetConfig{Tag: "free", MaxUtilization: 0.80}, nil)
	if got := free.Budget(snapshot); got != 800 {
		t.Fatalf("free 口径预算期望800，实际 %v", got)
	}

	total := NewProvider(nil, config.BudgetConfig{Tag: "total", MaxUtilization: 0.50}, nil)
	if got := total.Budget(snapshot); got != 1000 {
		t.Fatalf("total 口径预算期望1000，实际 %v", got)
	}
}

func TestProviderBudgetNegativeCash(t *testing.T) {
	provider := NewProvider(nil, config.BudgetConfig{Tag: "free", MaxUtilization: 0.80}, nil)
	snapshot := Snapshot{Cash: broker.Cash{Free: -52.3}}

	if got := provider.Budget(snapshot); got != 0 {
		t.Fatalf("负余额时预算应为0，实际 %v", got)
	}
}

func TestProviderFetchPropagatesError(t *testing.T) {
	client := &fakeBroker{holdingsErr: errors.New("timeout")}
	provider := NewProvider(client, config.BudgetConfig{Tag: "free", MaxUtilization: 0.80}, nil)

	_, err := provider.Fetch(context.Background())
	if err == nil {
		t.Fatal("期望返回错误")
	}
	if !strings.Contains(err.Error(), "采集账户快照失败") {
		t.Fatalf("错误信息不符合预期: %v", err)
	}
}
