package execution

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"catalyst-trader/internal/broker"
	"catalyst-trader/internal/config"
	"catalyst-trader/internal/risk"
)

type fakeBroker struct {
	mu          sync.Mutex
	placeErrs   map[string]error
	placeAcks   map[string]broker.OrderAck
	statusSteps map[string][]broker.OrderAck
	statusCalls map[string]int
	placed      []broker.OrderSubmission
	placePanics bool
}

func (f *fakeBroker) PlaceLimitOrder(ctx context.Context, sub broker.OrderSubmission) (broker.OrderAck, error) {
	if f.placePanics {
		panic("检查模式不应触发提交")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.placed = append(f.placed, sub)
	if err, ok := f.placeErrs[sub.Symbol]; ok {
		return broker.OrderAck{}, err
	}
	if ack, ok := f.placeAcks[sub.Symbol]; ok {
		return ack, nil
	}
	return broker.OrderAck{ID: "id-" + sub.Symbol, Status: "open"}, nil
}

func (f *fakeBroker) FetchOrderStatus(ctx context.Context, orderID, base string) (broker.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.statusCalls == nil {
		f.statusCalls = make(map[string]int)
	}
	steps := f.statusSteps[base]
	idx := f.statusCalls[base]
	f.statusCalls[base]++
	if len(steps) == 0 {
		return broker.OrderAck{ID: orderID, Status: "open"}, nil
	}
	if idx >= len(steps) {
		return steps[len(steps)-1], nil
	}
	return steps[idx], nil
}

func testExecConfig() config.ExecutionConfig {
	return config.ExecutionConfig{
		AckTimeout:   150 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		Workers:      4,
		TimeInForce:  "DAY",
	}
}

func order(symbol, side string, qty int64, limit float64) risk.ValidatedOrder {
	return risk.ValidatedOrder{Symbol: symbol, Side: side, Quantity: qty, LimitPrice: limit}
}

func TestExecuteCheckModeShortCircuits(t *testing.T) {
	client := &fakeBroker{placePanics: true}
	engine := NewEngine(client, testExecConfig(), nil)

	orders := []risk.ValidatedOrder{
		order("NVDA", "BUY", 5, 100),
		order("SAP", "SELL", 2, 180),
	}

	results := engine.Execute(context.Background(), orders, ModeCheck)
	if len(results) != 2 {
		t.Fatalf("期望2条结果，实际 %d", len(results))
	}
	for i, result := range results {
		if result.State != StateAccepted {
			t.Fatalf("检查模式结果应为 ACCEPTED，实际 %s", result.State)
		}
		if result.Order.Symbol != orders[i].Symbol {
			t.Fatalf("结果顺序与输入不一致: %s vs %s", result.Order.Symbol, orders[i].Symbol)
		}
	}
}

func TestExecuteSubmitFillAndResting(t *testing.T) {
	client := &fakeBroker{
		statusSteps: map[string][]broker.OrderAck{
			"NVDA": {
				{ID: "id-NVDA", Status: "open"},
				{ID: "id-NVDA", Status: "closed", Filled: 5, Amount: 5, Average: 100.1},
			},
			"SAP": {
				{ID: "id-SAP", Status: "open"},
			},
		},
	}
	engine := NewEngine(client, testExecConfig(), nil)

	results := engine.Execute(context.Background(), []risk.ValidatedOrder{
		order("NVDA", "BUY", 5, 100),
		order("SAP", "SELL", 2, 180),
	}, ModeSubmit)

	if results[0].State != StateFilled {
		t.Fatalf("NVDA 期望 FILLED，实际 %s", results[0].State)
	}
	if results[0].FilledQuantity != 5 || results[0].AvgPrice != 100.1 {
		t.Fatalf("成交明细不符: %+v", results[0])
	}
	if results[1].State != StateAccepted {
		t.Fatalf("挂单未成交应保持 ACCEPTED，实际 %s", results[1].State)
	}

	if len(client.placed) != 2 || client.placed[0].Symbol != "NVDA" {
		t.Fatalf("提交顺序不符: %+v", client.placed)
	}
	if client.placed[0].TimeInForce != "DAY" {
		t.Fatalf("TimeInForce 未带入: %+v", client.placed[0])
	}
}

func TestExecuteSubmitPartialFillAtDeadline(t *testing.T) {
	client := &fakeBroker{
		statusSteps: map[string][]broker.OrderAck{
			"ASML": {
				{ID: "id-ASML", Status: "open", Filled: 3, Amount: 10},
			},
		},
	}
	engine := NewEngine(client, testExecConfig(), nil)

	results := engine.Execute(context.Background(), []risk.ValidatedOrder{
		order("ASML", "BUY", 10, 612),
	}, ModeSubmit)

	if results[0].State != StatePartiallyFilled {
		t.Fatalf("期望 PARTIALLY_FILLED，实际 %s", results[0].State)
	}
	if results[0].FilledQuantity != 3 {
		t.Fatalf("部分成交数量期望3，实际 %v", results[0].FilledQuantity)
	}
}

func TestExecuteSubmitBrokerRejectionVerbatim(t *testing.T) {
	rejection := &ccxt.Error{Type: ccxt.InsufficientFundsErrType, Message: "margin is insufficient"}
	client := &fakeBroker{
		placeErrs: map[string]error{"NVDA": rejection},
		statusSteps: map[string][]broker.OrderAck{
			"SAP": {{ID: "id-SAP", Status: "closed", Filled: 2, Average: 179.9}},
		},
	}
	engine := NewEngine(client, testExecConfig(), nil)

	results := engine.Execute(context.Background(), []risk.ValidatedOrder{
		order("NVDA", "BUY", 5, 100),
		order("SAP", "SELL", 2, 180),
	}, ModeSubmit)

	if results[0].State != StateRejectedByBroker {
		t.Fatalf("期望 REJECTED_BY_BROKER，实际 %s", results[0].State)
	}
	if results[0].Note == "" {
		t.Fatal("券商拒绝原因应原样保留")
	}
	if results[1].State != StateFilled {
		t.Fatalf("后续订单不应受影响，实际 %s", results[1].State)
	}
}

func TestExecuteSubmitNetworkFailureTimesOut(t *testing.T) {
	client := &fakeBroker{
		placeErrs: map[string]error{"NVDA": fmt.Errorf("connection reset")},
	}
	engine := NewEngine(client, testExecConfig(), nil)

	results := engine.Execute(context.Background(), []risk.ValidatedOrder{
		order("NVDA", "BUY", 5, 100),
	}, ModeSubmit)

	if results[0].State != StateTimedOut {
		t.Fatalf("网络失败应判定 TIMED_OUT，实际 %s", results[0].State)
	}
	if len(client.placed) != 1 {
		t.Fatalf("同轮不应重试提交，实际提交 %d 次", len(client.placed))
	}
}

func TestExecuteSubmitSessionUnusableAbortsBatch(t *testing.T) {
	sessionErr := &ccxt.Error{Type: ccxt.AuthenticationErrorErrType, Message: "invalid api key"}
	client := &fakeBroker{
		placeErrs: map[string]error{"ASML": sessionErr},
		statusSteps: map[string][]broker.OrderAck{
			"NVDA": {{ID: "id-NVDA", Status: "closed", Filled: 5, Average: 100}},
		},
	}
	engine := NewEngine(client, testExecConfig(), nil)

	results := engine.Execute(context.Background(), []risk.ValidatedOrder{
		order("NVDA", "BUY", 5, 100),
		order("ASML", "BUY", 1, 612),
		order("SAP", "SELL", 2, 180),
	}, ModeSubmit)

	if results[0].State != StateFilled {
		t.Fatalf("已提交订单应正常收敛，实际 %s", results[0].State)
	}
	if results[1].State != StateCancelled {
		t.Fatalf("会话失败的订单应为 CANCELLED，实际 %s", results[1].State)
	}
	if results[2].State != StateCancelled {
		t.Fatalf("剩余订单应为 CANCELLED，实际 %s", results[2].State)
	}
	if len(client.placed) != 2 {
		t.Fatalf("会话不可用后不应继续提交，实际提交 %d 次", len(client.placed))
	}
}

func TestExecuteAckTimeoutWithoutResponse(t *testing.T) {
	client := &fakeBroker{
		placeAcks: map[string]broker.OrderAck{
			"NVDA": {ID: "id-NVDA", Status: ""},
		},
		statusSteps: map[string][]broker.OrderAck{
			"NVDA": {{ID: "id-NVDA", Status: ""}},
		},
	}
	engine := NewEngine(client, testExecConfig(), nil)

	results := engine.Execute(context.Background(), []risk.ValidatedOrder{
		order("NVDA", "BUY", 5, 100),
	}, ModeSubmit)

	if results[0].State != StateTimedOut {
		t.Fatalf("无回执应判定 TIMED_OUT，实际 %s", results[0].State)
	}
}
