package ai

import (
	"errors"
	"fmt"
	"strings"
)

// TradeIntent 表示大模型给出的单笔交易意向。
// Quantity 与 Notional 至少一项为正：Quantity 为整数股数，
// Notional 为目标金额（以预算币种计），由校验层换算成股数。
type TradeIntent struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Quantity      int64   `json:"quantity"`
	Notional      float64 `json:"notional"`
	Rationale     string  `json:"rationale"`
	Confidence    float64 `json:"confidence"`
	SourceCount   int     `json:"source_count"`
	CatalystStart string  `json:"catalyst_window_start"`
	CatalystEnd   string  `json:"catalyst_window_end"`
}

var validSides = map[string]struct{}{
	"BUY":  {},
	"SELL": {},
}

// Validate 校验意向字段合法性。
func (t TradeIntent) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return errors.New("symbol 不能为空")
	}

	side := strings.ToUpper(strings.TrimSpace(t.Side))
	if side == "" {
		return errors.New("side 不能为空")
	}
	if _, ok := validSides[side]; !ok {
		return fmt.Errorf("side 字段取值非法: %s", t.Side)
	}

	if t.Quantity < 0 {
		return fmt.Errorf("quantity 不能为负，当前为 %d", t.Quantity)
	}
	if t.Notional < 0 {
		return fmt.Errorf("notional 不能为负，当前为 %f", t.Notional)
	}
	if t.Quantity == 0 && t.Notional == 0 {
		return errors.New("quantity 与 notional 至少一项为正")
	}

	if t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("confidence 必须在 [0,1] 区间，目前为 %f", t.Confidence)
	}
	if t.SourceCount < 0 {
		return fmt.Errorf("source_count 不能为负，当前为 %d", t.SourceCount)
	}

	if strings.TrimSpace(t.Rationale) == "" {
		return errors.New("rationale 不能为空")
	}

	return nil
}

// NormalizedSide 返回规整后的交易方向。
func (t TradeIntent) NormalizedSide() string {
	return strings.ToUpper(strings.TrimSpace(t.Side))
}

// Plan 为大模型一次输出的完整交易计划。
type Plan struct {
	Trades  []TradeIntent `json:"trades"`
	Summary string        `json:"summary"`
}

// Validate 逐笔校验计划中的意向。
func (p Plan) Validate() error {
	for i, trade := range p.Trades {
		if err := trade.Validate(); err != nil {
			return fmt.Errorf("第 %d 笔意向非法: %w", i+1, err)
		}
	}
	return nil
}

// Symbols 按计划顺序返回去重后的标的列表。
func (p Plan) Symbols() []string {
	seen := make(map[string]struct{}, len(p.Trades))
	symbols := make([]string, 0, len(p.Trades))
	for _, trade := range p.Trades {
		symbol := strings.ToUpper(strings.TrimSpace(trade.Symbol))
		if symbol == "" {
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	}
	return symbols
}
