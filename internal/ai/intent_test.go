package ai

import (
	"strings"
	"testing"
	"time"

	"catalyst-trader/internal/account"
	"catalyst-trader/internal/broker"
)

func validIntent() TradeIntent {
	return TradeIntent{
		Symbol:      "NVDA",
		Side:        "BUY",
		Notional:    500,
		Rationale:   "财报超预期，数据中心指引上调",
		Confidence:  0.82,
		SourceCount: 4,
	}
}

func TestTradeIntentValidate(t *testing.T) {
	if err := validIntent().Validate(); err != nil {
		t.Fatalf("合法意向不应报错: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*TradeIntent)
		keyword string
	}{
		{"空symbol", func(i *TradeIntent) { i.Symbol = " " }, "symbol"},
		{"非法side", func(i *TradeIntent) { i.Side = "HOLD" }, "side"},
		{"负quantity", func(i *TradeIntent) { i.Quantity = -1 }, "quantity"},
		{"负notional", func(i *TradeIntent) { i.Notional = -100 }, "notional"},
		{"全零规模", func(i *TradeIntent) { i.Quantity = 0; i.Notional = 0 }, "至少一项为正"},
		{"越界confidence", func(i *TradeIntent) { i.Confidence = 1.2 }, "confidence"},
		{"负source_count", func(i *TradeIntent) { i.SourceCount = -2 }, "source_count"},
		{"空rationale", func(i *TradeIntent) { i.Rationale = "" }, "rationale"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent := validIntent()
			tc.mutate(&intent)
			err := intent.Validate()
			if err == nil {
				t.Fatal("期望校验失败")
			}
			if !strings.Contains(err.Error(), tc.keyword) {
				t.Fatalf("错误信息 %q 未包含 %q", err.Error(), tc.keyword)
			}
		})
	}
}

func TestParsePlanExtractsJSON(t *testing.T) {
	raw := "以下是本轮计划：\n{\"trades\":[{\"symbol\":\"nvda\",\"side\":\"BUY\",\"quantity\":0,\"notional\":800,\"rationale\":\"催化\",\"confidence\":0.7,\"source_count\":3}],\"summary\":\"单笔买入\"}\n以上。"

	plan, err := ParsePlan(raw)
	if err != nil {
		t.Fatalf("ParsePlan 返回错误: %v", err)
	}
	if len(plan.Trades) != 1 {
		t.Fatalf("期望1笔意向，实际 %d", len(plan.Trades))
	}
	if plan.Trades[0].Notional != 800 {
		t.Fatalf("notional 期望800，实际 %v", plan.Trades[0].Notional)
	}
	if err := plan.Validate(); err != nil {
		t.Fatalf("计划校验失败: %v", err)
	}
}

func TestParsePlanRejectsNonJSON(t *testing.T) {
	if _, err := ParsePlan("本轮无合适机会"); err == nil {
		t.Fatal("缺少JSON时应报错")
	}
}

func TestPlanSymbolsDeduplicates(t *testing.T) {
	plan := Plan{Trades: []TradeIntent{
		{Symbol: "NVDA"},
		{Symbol: "nvda"},
		{Symbol: "ASML"},
		{Symbol: " "},
	}}

	symbols := plan.Symbols()
	if len(symbols) != 2 || symbols[0] != "NVDA" || symbols[1] != "ASML" {
		t.Fatalf("去重结果不符: %v", symbols)
	}
}

func TestBuildPromptContainsBudgetAndPositions(t *testing.T) {
	snapshot := account.Snapshot{
		Cash: broker.Cash{Free: 1000, Currency: "EUR"},
		Positions: map[string]account.Position{
			"SAP": {Quantity: 5, AvgCost: 180},
		},
	}

	prompt, err := BuildPrompt(PromptInput{
		Snapshot:     snapshot,
		Budget:       800,
		Currency:     "EUR",
		MaxPositions: 5,
		Memory:       "上轮 NVDA 买入后回撤3%",
		OpenMarkets:  []string{"US", "Europe"},
	})
	if err != nil {
		t.Fatalf("BuildPrompt 返回错误: %v", err)
	}

	for _, want := range []string{"800.00 EUR", "SAP", "US, Europe", "NVDA 买入后回撤"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("提示词缺少 %q", want)
		}
	}
	if strings.Contains(prompt, "只允许 SELL") {
		t.Fatal("非只卖模式不应出现只卖约束")
	}
}

func TestBuildPromptSellOnly(t *testing.T) {
	prompt, err := BuildPrompt(PromptInput{
		Snapshot: account.Snapshot{},
		Budget:   0,
		Currency: "EUR",
		SellOnly: true,
	})
	if err != nil {
		t.Fatalf("BuildPrompt 返回错误: %v", err)
	}
	if !strings.Contains(prompt, "只允许 SELL") {
		t.Fatal("只卖模式应出现在提示词中")
	}
}

func TestOpenMarkets(t *testing.T) {
	// 周三 14:00 UTC，美欧交易时段重叠。
	wed := time.Date(2025, 6, 4, 14, 0, 0, 0, time.UTC)
	open := OpenMarkets(wed)
	if len(open) != 2 || open[0] != "US" || open[1] != "Europe" {
		t.Fatalf("期望美欧开市，实际 %v", open)
	}

	// 周六全休。
	sat := time.Date(2025, 6, 7, 14, 0, 0, 0, time.UTC)
	if got := OpenMarkets(sat); got != nil {
		t.Fatalf("周末应休市，实际 %v", got)
	}

	// 周三 03:00 UTC，亚洲时段。
	asia := time.Date(2025, 6, 4, 3, 0, 0, 0, time.UTC)
	open = OpenMarkets(asia)
	if len(open) != 1 || open[0] != "Asia" {
		t.Fatalf("期望仅亚洲开市，实际 %v", open)
	}
}

func TestOpenMarketsHolidays(t *testing.T) {
	// 2026-12-25 是周五，圣诞节三大市场全部休市。
	christmas := time.Date(2026, 12, 25, 14, 0, 0, 0, time.UTC)
	if got := OpenMarkets(christmas); got != nil {
		t.Fatalf("圣诞节应休市，实际 %v", got)
	}

	// 2025-07-04 是周五，美国独立日仅美国休市，欧洲正常交易。
	july4 := time.Date(2025, 7, 4, 14, 0, 0, 0, time.UTC)
	open := OpenMarkets(july4)
	if len(open) != 1 || open[0] != "Europe" {
		t.Fatalf("独立日期望仅欧洲开市，实际 %v", open)
	}
}
