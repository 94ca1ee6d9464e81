package account

import (
	"strings"
	"time"

	"catalyst-trader/internal/broker"
)

// Position 表示快照中的单个持仓。
type Position struct {
	Quantity int64
	AvgCost  float64
	Side     string
	Currency string
}

// Snapshot 是一次交易周期开始时的账户视图，周期内保持不变。
type Snapshot struct {
	Cash        broker.Cash
	Positions   map[string]Position
	RetrievedAt time.Time
}

// HasShort 报告快照中是否存在空头持仓。
func (s Snapshot) HasShort() bool {
	for _, pos := range s.Positions {
		if strings.EqualFold(pos.Side, "SHORT") || pos.Quantity < 0 {
			return true
		}
	}
	return false
}

// PositionCount 返回非零持仓数量。
func (s Snapshot) PositionCount() int {
	count := 0
	for _, pos := range s.Positions {
		if pos.Quantity != 0 {
			count++
		}
	}
	return count
}

// Quantity 返回指定标的的持仓数量，未持有时为 0。
func (s Snapshot) Quantity(symbol string) int64 {
	pos, ok := s.Positions[broker.BaseSymbol(symbol)]
	if !ok {
		return 0
	}
	return pos.Quantity
}
