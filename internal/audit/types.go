package audit

import (
	"time"

	"catalyst-trader/internal/account"
	"catalyst-trader/internal/ai"
	"catalyst-trader/internal/execution"
	"catalyst-trader/internal/feature"
	"catalyst-trader/internal/risk"
)

// EventType 表示审计事件类型。
type EventType string

const (
	EventSnapshot     EventType = "snapshot"
	EventPlan         EventType = "plan"
	EventValidation   EventType = "validation"
	EventExecution    EventType = "execution"
	EventCycleSummary EventType = "cycle_summary"
	EventError        EventType = "error"
)

// Event 封装通用审计事件，同一 RunID 归属同一交易周期。
type Event struct {
	RunID     string      `json:"run_id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SnapshotPayload 记录周期开始时的账户快照与预算。
type SnapshotPayload struct {
	Snapshot account.Snapshot          `json:"snapshot"`
	Budget   float64                   `json:"budget"`
	SellOnly bool                      `json:"sell_only"`
	Health   map[string]feature.Health `json:"health,omitempty"`
}

// PlanPayload 记录模型交易计划及其生成上下文。
type PlanPayload struct {
	Plan        ai.Plan  `json:"plan"`
	Prompt      string   `json:"prompt,omitempty"`
	OpenMarkets []string `json:"open_markets,omitempty"`
	Focus       string   `json:"focus,omitempty"`
}

// ValidationPayload 记录校验报告。
type ValidationPayload struct {
	Report risk.Report `json:"report"`
}

// ExecutionPayload 记录订单执行结果。
type ExecutionPayload struct {
	Mode    execution.Mode          `json:"mode"`
	Results []execution.OrderResult `json:"results"`
}

// CycleSummary 是单个周期的压缩复盘，供后续周期的提示词回溯。
type CycleSummary struct {
	RunID      string    `json:"run_id"`
	Time       time.Time `json:"time"`
	Bought     []string  `json:"bought,omitempty"`
	Sold       []string  `json:"sold,omitempty"`
	Rejections []string  `json:"rejections,omitempty"`
	Summary    string    `json:"summary,omitempty"`
}

// ErrorPayload 记录周期内的异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
