package feature

import (
	"context"
	"math"

	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"catalyst-trader/internal/broker"
)

const (
	candleLookback = 60
	minCandles     = 21
)

// Health 汇总单个持仓标的的日线健康度指标。
type Health struct {
	Symbol   string  `json:"symbol"`
	Close    float64 `json:"close"`
	RSI14    float64 `json:"rsi_14"`
	SMA20    float64 `json:"sma_20"`
	ATR14    float64 `json:"atr_14"`
	AboveSMA bool    `json:"above_sma_20"`
}

type candleClient interface {
	FetchDailyCandles(ctx context.Context, base string, limit int64) ([]broker.Candle, error)
}

// Extractor 基于日线K线计算持仓健康度，供提示词与审计使用。
type Extractor struct {
	client candleClient
	logger *zap.Logger
}

// NewExtractor 创建健康度提取器。
func NewExtractor(client candleClient, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		client: client,
		logger: logger,
	}
}

// PositionHealth 为每个持仓标的计算指标，数据不足或取数失败的标的会被跳过。
func (e *Extractor) PositionHealth(ctx context.Context, symbols []string) map[string]Health {
	results := make(map[string]Health, len(symbols))

	for _, raw := range symbols {
		symbol := broker.BaseSymbol(raw)
		if symbol == "" {
			continue
		}
		if _, done := results[symbol]; done {
			continue
		}

		candles, err := e.client.FetchDailyCandles(ctx, symbol, candleLookback)
		if err != nil {
			e.logger.Warn("获取日线失败，跳过健康度计算",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}
		if len(candles) < minCandles {
			e.logger.Warn("日线数量不足，跳过健康度计算",
				zap.String("symbol", symbol),
				zap.Int("candles", len(candles)),
			)
			continue
		}

		health, ok := compute(symbol, candles)
		if !ok {
			continue
		}
		results[symbol] = health
	}

	return results
}

func compute(symbol string, candles []broker.Candle) (Health, bool) {
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	rsi := lastValid(talib.Rsi(closes, 14))
	sma := lastValid(talib.Sma(closes, 20))
	atr := lastValid(talib.Atr(highs, lows, closes, 14))
	lastClose := closes[len(closes)-1]

	if rsi == 0 && sma == 0 && atr == 0 {
		return Health{}, false
	}

	return Health{
		Symbol:   symbol,
		Close:    lastClose,
		RSI14:    rsi,
		SMA20:    sma,
		ATR14:    atr,
		AboveSMA: sma > 0 && lastClose > sma,
	}, true
}

func lastValid(values []float64) float64 {
	for i := len(values) - 1; i >= 0; i-- {
		v := values[i]
		if v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return 0
}
