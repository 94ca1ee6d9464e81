package execution

import "catalyst-trader/internal/risk"

// Mode 控制执行引擎是否真正下单。
type Mode string

const (
	// ModeCheck 完成除提交外的全部步骤，不产生任何外部副作用。
	ModeCheck Mode = "CHECK"
	// ModeSubmit 向券商真实提交订单。
	ModeSubmit Mode = "SUBMIT"
)

// OrderState 为单笔订单的状态机取值。
type OrderState string

const (
	StatePending          OrderState = "PENDING"
	StateSubmitted        OrderState = "SUBMITTED"
	StateAccepted         OrderState = "ACCEPTED"
	StateRejectedByBroker OrderState = "REJECTED_BY_BROKER"
	StateFilled           OrderState = "FILLED"
	StatePartiallyFilled  OrderState = "PARTIALLY_FILLED"
	StateCancelled        OrderState = "CANCELLED"
	StateTimedOut         OrderState = "TIMED_OUT"
)

// Terminal 报告状态是否为终态。
func (s OrderState) Terminal() bool {
	switch s {
	case StateFilled, StatePartiallyFilled, StateRejectedByBroker, StateCancelled, StateTimedOut:
		return true
	default:
		return false
	}
}

// OrderResult 是单笔订单执行的最终汇报，与输入订单一一对应。
type OrderResult struct {
	Order          risk.ValidatedOrder `json:"order"`
	State          OrderState          `json:"state"`
	OrderID        string              `json:"order_id,omitempty"`
	FilledQuantity float64             `json:"filled_quantity"`
	AvgPrice       float64             `json:"avg_price"`
	Note           string              `json:"note,omitempty"`
}
