package execution

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"catalyst-trader/internal/broker"
	"catalyst-trader/internal/config"
	"catalyst-trader/internal/risk"
)

type brokerClient interface {
	PlaceLimitOrder(ctx context.Context, sub broker.OrderSubmission) (broker.OrderAck, error)
	FetchOrderStatus(ctx context.Context, orderID, base string) (broker.OrderAck, error)
}

// Engine 负责把校验后的订单提交给券商并收敛到终态。
// 提交阶段串行执行（单一逻辑写者），回执确认阶段并发轮询。
type Engine struct {
	client brokerClient
	cfg    config.ExecutionConfig
	logger *zap.Logger
}

// NewEngine 创建执行引擎。
func NewEngine(client brokerClient, cfg config.ExecutionConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Execute 逐笔处理订单并返回与输入顺序一致的结果。
// CHECK 模式在提交前短路，结果统一为 ACCEPTED。
// 提交失败不做同轮重试：重复提交的风险由下一轮全新快照兜底。
func (e *Engine) Execute(ctx context.Context, orders []risk.ValidatedOrder, mode Mode) []OrderResult {
	results := make([]OrderResult, len(orders))
	for i, order := range orders {
		results[i] = OrderResult{Order: order, State: StatePending}
	}

	if mode != ModeSubmit {
		for i := range results {
			results[i].State = StateAccepted
			results[i].Note = "检查模式，未提交"
		}
		return results
	}

	sessionDown := false
	for i := range results {
		order := results[i].Order

		if sessionDown {
			results[i].State = StateCancelled
			results[i].Note = "券商会话不可用，本单未提交"
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			results[i].State = StateCancelled
			results[i].Note = "周期被中断，本单未提交"
			continue
		}

		ack, err := e.client.PlaceLimitOrder(ctx, broker.OrderSubmission{
			Symbol:      order.Symbol,
			Side:        order.Side,
			Quantity:    order.Quantity,
			LimitPrice:  order.LimitPrice,
			TimeInForce: e.cfg.TimeInForce,
		})
		if err != nil {
			switch {
			case broker.IsSessionUnusable(err):
				sessionDown = true
				results[i].State = StateCancelled
				results[i].Note = err.Error()
				e.logger.Error("券商会话不可用，中止剩余订单",
					zap.String("symbol", order.Symbol),
					zap.Error(err),
				)
			case broker.IsBrokerRejection(err):
				results[i].State = StateRejectedByBroker
				results[i].Note = err.Error()
			default:
				// 网络层失败无法确认订单是否已受理，按未获回执处理。
				results[i].State = StateTimedOut
				results[i].Note = err.Error()
			}
			continue
		}

		results[i].State = StateSubmitted
		results[i].OrderID = ack.ID
		e.applyAck(&results[i], ack)
	}

	e.awaitAcks(ctx, results)

	for i := range results {
		e.logger.Info("订单执行结果",
			zap.String("symbol", results[i].Order.Symbol),
			zap.String("side", results[i].Order.Side),
			zap.Int64("quantity", results[i].Order.Quantity),
			zap.String("state", string(results[i].State)),
			zap.String("order_id", results[i].OrderID),
		)
	}

	return results
}

// awaitAcks 并发轮询尚未到终态的订单直至确认窗口关闭。
func (e *Engine) awaitAcks(ctx context.Context, results []OrderResult) {
	group, groupCtx := errgroup.WithContext(ctx)
	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	group.SetLimit(workers)

	for i := range results {
		if results[i].State != StateSubmitted && results[i].State != StateAccepted {
			continue
		}

		result := &results[i]
		group.Go(func() error {
			e.pollOrder(groupCtx, result)
			return nil
		})
	}

	// goroutine 均不返回错误，Wait 仅用于汇合。
	_ = group.Wait()
}

func (e *Engine) pollOrder(ctx context.Context, result *OrderResult) {
	deadline := time.Now().Add(e.cfg.AckTimeout)
	acknowledged := result.State == StateAccepted

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			break
		}

		ack, err := e.client.FetchOrderStatus(ctx, result.OrderID, result.Order.Symbol)
		if err != nil {
			e.logger.Warn("查询订单回执失败",
				zap.String("order_id", result.OrderID),
				zap.String("symbol", result.Order.Symbol),
				zap.Error(err),
			)
		} else {
			e.applyAck(result, ack)
			if result.State.Terminal() {
				return
			}
			if result.State == StateAccepted {
				acknowledged = true
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		wait := e.cfg.PollInterval
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	// 确认窗口关闭：已获回执但仍挂单的订单视为有效驻留，
	// 有部分成交的汇报为部分成交；从未获回执的判定超时。
	switch {
	case acknowledged && result.FilledQuantity > 0:
		result.State = StatePartiallyFilled
	case acknowledged:
		result.State = StateAccepted
	default:
		result.State = StateTimedOut
		if result.Note == "" {
			result.Note = "确认窗口内未收到券商回执"
		}
	}
}

// applyAck 将券商回执映射到状态机。
func (e *Engine) applyAck(result *OrderResult, ack broker.OrderAck) {
	if ack.ID != "" {
		result.OrderID = ack.ID
	}
	if ack.Filled > 0 {
		result.FilledQuantity = ack.Filled
	}
	if ack.Average > 0 {
		result.AvgPrice = ack.Average
	}

	switch ack.Status {
	case "open":
		result.State = StateAccepted
	case "closed":
		result.State = StateFilled
	case "canceled":
		result.State = StateCancelled
	case "rejected", "expired":
		result.State = StateRejectedByBroker
		if result.Note == "" {
			result.Note = "券商拒绝: " + ack.Status
		}
	}
}
