package broker

import (
	"strings"
	"time"
)

// Cash 描述账户在预算币种下的资金状况。
type Cash struct {
	Free     float64
	Total    float64
	Currency string
}

// Holding 表示单个标的的持仓。
type Holding struct {
	Symbol    string // 基础资产代码，如 "BTC"
	Quantity  float64
	AvgCost   float64
	MarkPrice float64
	Side      string // LONG / SHORT
	Currency  string
	Timestamp time.Time
}

// Ticker 为统一行情报价，任一字段可能为 0 表示暂不可用。
type Ticker struct {
	Symbol string
	Bid    float64
	Ask    float64
	Last   float64
	At     time.Time
}

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// OrderSubmission 描述一笔待提交的限价单。
type OrderSubmission struct {
	Symbol      string // 基础资产代码
	Side        string // BUY / SELL
	Quantity    int64
	LimitPrice  float64
	TimeInForce string
}

// OrderAck 为券商订单回执的统一视图。
type OrderAck struct {
	ID      string
	Status  string // open / closed / canceled / rejected / expired
	Filled  float64
	Amount  float64
	Average float64
}

// BaseSymbol 将市场符号（如 "ETH/EUR:EUR"）归一化为基础资产代码。
func BaseSymbol(symbol string) string {
	s := strings.TrimSpace(symbol)
	if s == "" {
		return ""
	}
	if idx := strings.Index(s, "/"); idx > 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, ":"); idx > 0 {
		s = s[:idx]
	}
	return strings.ToUpper(s)
}
