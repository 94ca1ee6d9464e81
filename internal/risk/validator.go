package risk

import (
	"fmt"
	"math"
	"strings"

	"catalyst-trader/internal/account"
	"catalyst-trader/internal/ai"
	"catalyst-trader/internal/quote"
)

// LimitPrice 在参考价基础上加方向性缓冲并取整到最小报价单位。
// BUY 向上取整保持可成交性，SELL 向下取整。
func LimitPrice(side string, reference float64, bufferBps, tick float64) float64 {
	var price float64
	if strings.EqualFold(side, "BUY") {
		price = reference * (1 + bufferBps/10000)
	} else {
		price = reference * (1 - bufferBps/10000)
	}

	if tick <= 0 {
		return price
	}

	steps := price / tick
	if strings.EqualFold(side, "BUY") {
		// 浮点除法的微小误差不应把恰好落在刻度上的价格抬高一档。
		if rounded := math.Round(steps); math.Abs(steps-rounded) < 1e-9 {
			steps = rounded
		} else {
			steps = math.Ceil(steps)
		}
	} else {
		if rounded := math.Round(steps); math.Abs(steps-rounded) < 1e-9 {
			steps = rounded
		} else {
			steps = math.Floor(steps)
		}
	}
	return steps * tick
}

// Validate 对交易计划执行确定性的顺序校验。纯函数：不访问网络与时钟，
// 参考价由调用方预先解析并以映射传入，缺失即视为不可解析。
// 意向按计划顺序处理，先到者优先占用预算与持仓额度；
// 单笔意向内的检查按固定顺序短路。
func Validate(snapshot account.Snapshot, plan ai.Plan, refs map[string]quote.Reference, budget float64, policy Policy) Report {
	report := Report{
		Orders:          make([]ValidatedOrder, 0, len(plan.Trades)),
		Rejections:      make([]Rejection, 0),
		BudgetStart:     budget,
		BudgetRemaining: budget,
	}

	// 持仓上限计量：既有非零持仓与本轮已接受的 BUY 标的的并集。
	occupied := make(map[string]struct{}, len(snapshot.Positions))
	for symbol, pos := range snapshot.Positions {
		if pos.Quantity != 0 {
			occupied[symbol] = struct{}{}
		}
	}

	accepted := make(map[string]struct{}, len(plan.Trades))

	for _, intent := range plan.Trades {
		symbol := strings.ToUpper(strings.TrimSpace(intent.Symbol))
		side := intent.NormalizedSide()

		reject := func(reason RejectionReason, detail string) {
			report.Rejections = append(report.Rejections, Rejection{
				Symbol: symbol,
				Side:   side,
				Reason: reason,
				Detail: detail,
				Intent: intent,
			})
		}

		// 1. 标的必须可解析出参考价。
		if symbol == "" {
			reject(ReasonUnresolvableSymbol, "标的代码为空")
			continue
		}
		ref, ok := refs[symbol]
		if !ok || ref.Price <= 0 {
			reject(ReasonUnresolvableSymbol, fmt.Sprintf("%s 无可用参考价", symbol))
			continue
		}

		limit := LimitPrice(side, ref.Price, policy.LimitBufferBps, policy.PriceTick)

		// 2. 方向性资格。
		var quantity int64
		switch side {
		case "SELL":
			held := snapshot.Quantity(symbol)
			if held <= 0 {
				reject(ReasonNoPositionToSell, fmt.Sprintf("%s 无可卖持仓", symbol))
				continue
			}

			requested := intent.Quantity
			if requested == 0 && limit > 0 {
				requested = int64(math.Floor(intent.Notional / limit))
			}
			if requested <= 0 {
				reject(ReasonQuantityRoundsToZero, fmt.Sprintf("%s 卖出数量取整后为0", symbol))
				continue
			}
			// 卖出永不超过持仓，持仓数量不允许被打穿到负值。
			if requested > held {
				requested = held
			}
			quantity = requested

		case "BUY":
			if report.BudgetRemaining < limit {
				reject(ReasonInsufficientBudget, fmt.Sprintf("剩余预算 %.2f 不足一股（限价 %.2f）", report.BudgetRemaining, limit))
				continue
			}

			notional := intent.Notional
			if intent.Quantity > 0 {
				notional = float64(intent.Quantity) * limit
			}
			spend := math.Min(notional, report.BudgetRemaining)
			quantity = int64(math.Floor(spend / limit))
			if quantity <= 0 {
				reject(ReasonQuantityRoundsToZero, fmt.Sprintf("%s 买入数量取整后为0", symbol))
				continue
			}

		default:
			// 计划已过字段校验，此处仅为防御。
			reject(ReasonUnresolvableSymbol, fmt.Sprintf("side 非法: %s", intent.Side))
			continue
		}

		// 3. 持仓数量上限，仅约束引入新标的的 BUY。
		if side == "BUY" {
			if _, holds := occupied[symbol]; !holds && len(occupied) >= policy.MaxPositions {
				reject(ReasonPositionLimitReached, fmt.Sprintf("持仓数已达上限 %d", policy.MaxPositions))
				continue
			}
		}

		// 4. 同一计划内重复标的，后到者出局。
		if _, dup := accepted[symbol]; dup {
			reject(ReasonDuplicateSymbolInPlan, fmt.Sprintf("%s 在本计划中已有订单", symbol))
			continue
		}

		// 5. 信心与信息源下限。
		if intent.Confidence < policy.MinConfidence || intent.SourceCount < policy.MinSources {
			reject(ReasonInsufficientConviction, fmt.Sprintf("confidence=%.2f source_count=%d 低于门槛", intent.Confidence, intent.SourceCount))
			continue
		}

		if side == "BUY" {
			report.BudgetRemaining -= float64(quantity) * limit
			occupied[symbol] = struct{}{}
		}
		accepted[symbol] = struct{}{}

		report.Orders = append(report.Orders, ValidatedOrder{
			Symbol:         symbol,
			Side:           side,
			Quantity:       quantity,
			ReferencePrice: ref.Price,
			LimitPrice:     limit,
			Rationale:      intent.Rationale,
			Confidence:     intent.Confidence,
		})
	}

	return report
}
