package quote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"catalyst-trader/internal/broker"
	"catalyst-trader/internal/config"
)

type scriptedTicker struct {
	mu    sync.Mutex
	calls map[string]int
	steps map[string][]broker.Ticker
	err   error
}

func (s *scriptedTicker) FetchTicker(ctx context.Context, base string) (broker.Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return broker.Ticker{}, s.err
	}
	if s.calls == nil {
		s.calls = make(map[string]int)
	}

	steps := s.steps[base]
	idx := s.calls[base]
	s.calls[base]++
	if idx >= len(steps) {
		if len(steps) == 0 {
			return broker.Ticker{Symbol: base}, nil
		}
		return steps[len(steps)-1], nil
	}
	return steps[idx], nil
}

func testQuoteConfig() config.QuoteConfig {
	return config.QuoteConfig{
		MaxWait:      200 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		Workers:      4,
	}
}

func TestResolvePrefersMid(t *testing.T) {
	client := &scriptedTicker{steps: map[string][]broker.Ticker{
		"NVDA": {{Symbol: "NVDA", Bid: 99, Ask: 101, Last: 100.5}},
	}}
	resolver := NewResolver(client, testQuoteConfig(), nil)

	ref, err := resolver.Resolve(context.Background(), "NVDA")
	if err != nil {
		t.Fatalf("Resolve 返回错误: %v", err)
	}
	if ref.Source != "mid" || ref.Price != 100 {
		t.Fatalf("期望中间价100，实际 source=%s price=%v", ref.Source, ref.Price)
	}
}

func TestResolveWaitsForBidAsk(t *testing.T) {
	client := &scriptedTicker{steps: map[string][]broker.Ticker{
		"SAP": {
			{Symbol: "SAP"},
			{Symbol: "SAP", Last: 180},
			{Symbol: "SAP", Bid: 179, Ask: 181, Last: 180},
		},
	}}
	resolver := NewResolver(client, testQuoteConfig(), nil)

	ref, err := resolver.Resolve(context.Background(), "SAP")
	if err != nil {
		t.Fatalf("Resolve 返回错误: %v", err)
	}
	if ref.Source != "mid" || ref.Price != 180 {
		t.Fatalf("期望等到双边报价，实际 source=%s price=%v", ref.Source, ref.Price)
	}
}

func TestResolveFallsBackToLast(t *testing.T) {
	client := &scriptedTicker{steps: map[string][]broker.Ticker{
		"ASML": {{Symbol: "ASML", Last: 612.5}},
	}}
	resolver := NewResolver(client, testQuoteConfig(), nil)

	ref, err := resolver.Resolve(context.Background(), "ASML")
	if err != nil {
		t.Fatalf("Resolve 返回错误: %v", err)
	}
	if ref.Source != "last" || ref.Price != 612.5 {
		t.Fatalf("期望回退到最新成交价，实际 source=%s price=%v", ref.Source, ref.Price)
	}
}

func TestResolveTimesOutWithoutAnyPrice(t *testing.T) {
	client := &scriptedTicker{steps: map[string][]broker.Ticker{}}
	resolver := NewResolver(client, testQuoteConfig(), nil)

	_, err := resolver.Resolve(context.Background(), "TSM")
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("期望 ErrPriceUnavailable，实际 %v", err)
	}
}

func TestResolveAllSkipsFailures(t *testing.T) {
	client := &scriptedTicker{steps: map[string][]broker.Ticker{
		"NVDA": {{Symbol: "NVDA", Bid: 99, Ask: 101}},
		"ASML": {{Symbol: "ASML", Last: 612.5}},
	}}
	resolver := NewResolver(client, testQuoteConfig(), nil)

	refs, err := resolver.ResolveAll(context.Background(), []string{"NVDA", "ASML", "TSM", "NVDA"})
	if err != nil {
		t.Fatalf("ResolveAll 返回错误: %v", err)
	}

	if len(refs) != 2 {
		t.Fatalf("期望解析出2个参考价，实际 %d", len(refs))
	}
	if _, ok := refs["TSM"]; ok {
		t.Fatal("无报价标的不应出现在结果中")
	}
	if refs["NVDA"].Price != 100 {
		t.Fatalf("NVDA 参考价期望100，实际 %v", refs["NVDA"].Price)
	}
}
