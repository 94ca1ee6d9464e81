package risk

import (
	"catalyst-trader/internal/ai"
	"catalyst-trader/internal/config"
)

// RejectionReason 枚举校验拒绝原因。
type RejectionReason string

const (
	ReasonUnresolvableSymbol     RejectionReason = "UNRESOLVABLE_SYMBOL"
	ReasonNoPositionToSell       RejectionReason = "NO_POSITION_TO_SELL"
	ReasonInsufficientBudget     RejectionReason = "INSUFFICIENT_BUDGET"
	ReasonQuantityRoundsToZero   RejectionReason = "QUANTITY_ROUNDS_TO_ZERO"
	ReasonPositionLimitReached   RejectionReason = "POSITION_LIMIT_REACHED"
	ReasonDuplicateSymbolInPlan  RejectionReason = "DUPLICATE_SYMBOL_IN_PLAN"
	ReasonInsufficientConviction RejectionReason = "INSUFFICIENT_CONVICTION"
)

// ValidatedOrder 是通过全部校验、可提交给执行引擎的订单。
type ValidatedOrder struct {
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	Quantity       int64   `json:"quantity"`
	ReferencePrice float64 `json:"reference_price"`
	LimitPrice     float64 `json:"limit_price"`
	Rationale      string  `json:"rationale"`
	Confidence     float64 `json:"confidence"`
}

// Rejection 记录一笔被拒绝的意向及其原因，保留原始意向便于审计回放。
type Rejection struct {
	Symbol string          `json:"symbol"`
	Side   string          `json:"side"`
	Reason RejectionReason `json:"reason"`
	Detail string          `json:"detail"`
	Intent ai.TradeIntent  `json:"intent"`
}

// Report 是一次校验的完整结果，顺序与输入计划一致。
type Report struct {
	Orders          []ValidatedOrder `json:"orders"`
	Rejections      []Rejection      `json:"rejections"`
	BudgetStart     float64          `json:"budget_start"`
	BudgetRemaining float64          `json:"budget_remaining"`
}

// Policy 是校验所需的全部策略参数，均来自配置。
type Policy struct {
	MaxPositions   int
	MinConfidence  float64
	MinSources     int
	LimitBufferBps float64
	PriceTick      float64
}

// PolicyFromConfig 由配置构造校验策略。
func PolicyFromConfig(cfg config.PolicyConfig) Policy {
	return Policy{
		MaxPositions:   cfg.MaxPositions,
		MinConfidence:  cfg.MinConfidence,
		MinSources:     cfg.MinSources,
		LimitBufferBps: cfg.LimitBufferBps,
		PriceTick:      cfg.PriceTick,
	}
}
