package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"catalyst-trader/internal/config"
)

// Client 负责与券商交互并实现重试机制。
type Client struct {
	cfg           config.BrokerConfig
	quoteCurrency string
	logger        *zap.Logger
	exchange      *ccxt.Binanceusdm

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 构造 Binance USDⓈ-M 客户端，quoteCurrency 为计价与结算币种。
func NewClient(cfg config.BrokerConfig, quoteCurrency string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	quoteCurrency = strings.ToUpper(strings.TrimSpace(quoteCurrency))
	if quoteCurrency == "" {
		return nil, errors.New("broker: 计价币种不能为空")
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:           cfg,
		quoteCurrency: quoteCurrency,
		logger:        logger,
		exchange:      ex,
	}, nil
}

// QuoteCurrency 返回计价币种。
func (c *Client) QuoteCurrency() string {
	return c.quoteCurrency
}

// MarketSymbol 将基础资产代码映射为市场符号。
func (c *Client) MarketSymbol(base string) string {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s:%s", base, c.quoteCurrency, c.quoteCurrency)
}

// FetchCash 获取预算币种下的资金余额。
func (c *Client) FetchCash(ctx context.Context) (Cash, error) {
	var raw ccxt.Balances

	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		balances, err := c.exchange.FetchBalance()
		if err != nil {
			return err
		}

		raw = balances
		return nil
	})
	if err != nil {
		return Cash{}, fmt.Errorf("broker: 获取账户余额失败: %w", err)
	}

	cash := Cash{Currency: c.quoteCurrency}
	if raw.Free != nil {
		if v, ok := raw.Free[c.quoteCurrency]; ok && v != nil {
			cash.Free = *v
		}
	}
	if raw.Total != nil {
		if v, ok := raw.Total[c.quoteCurrency]; ok && v != nil {
			cash.Total = *v
		}
	}

	return cash, nil
}

// FetchHoldings 获取全部非零持仓，按基础资产代码归一化。
func (c *Client) FetchHoldings(ctx context.Context) ([]Holding, error) {
	var raw []ccxt.Position

	err := c.callWithRetry(ctx, "fetch_positions", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		positions, err := c.exchange.FetchPositions()
		if err != nil {
			return err
		}

		raw = positions
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("broker: 获取持仓失败: %w", err)
	}

	now := time.Now().UTC()
	holdings := make([]Holding, 0, len(raw))
	for _, rawPos := range raw {
		symbol := BaseSymbol(derefString(rawPos.Symbol))
		if symbol == "" {
			continue
		}

		size := derefFloat(rawPos.Contracts)
		if size == 0 {
			continue
		}

		side := strings.ToUpper(strings.TrimSpace(derefString(rawPos.Side)))
		if side == "" {
			side = "LONG"
		}

		holdings = append(holdings, Holding{
			Symbol:    symbol,
			Quantity:  size,
			AvgCost:   derefFloat(rawPos.EntryPrice),
			MarkPrice: derefFloat(rawPos.MarkPrice),
			Side:      side,
			Currency:  c.quoteCurrency,
			Timestamp: now,
		})
	}

	return holdings, nil
}

// FetchTicker 获取单个标的的最新报价。
func (c *Client) FetchTicker(ctx context.Context, base string) (Ticker, error) {
	market := c.MarketSymbol(base)
	if market == "" {
		return Ticker{}, errors.New("broker: 标的代码不能为空")
	}

	var raw ccxt.Ticker
	err := c.callWithRetry(ctx, "fetch_ticker", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		ticker, err := c.exchange.FetchTicker(market)
		if err != nil {
			return err
		}

		raw = ticker
		return nil
	})
	if err != nil {
		return Ticker{}, fmt.Errorf("broker: 获取 %s 报价失败: %w", base, err)
	}

	out := Ticker{
		Symbol: BaseSymbol(market),
		Bid:    derefFloat(raw.Bid),
		Ask:    derefFloat(raw.Ask),
		Last:   derefFloat(raw.Last),
		At:     time.Now().UTC(),
	}
	if raw.Timestamp != nil {
		out.At = time.UnixMilli(int64(*raw.Timestamp)).UTC()
	}

	return out, nil
}

// FetchDailyCandles 获取日线K线，用于持仓健康度指标。
func (c *Client) FetchDailyCandles(ctx context.Context, base string, limit int64) ([]Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	market := c.MarketSymbol(base)
	if market == "" {
		return nil, errors.New("broker: 标的代码不能为空")
	}

	var raw []ccxt.OHLCV
	err := c.callWithRetry(ctx, "fetch_ohlcv_1d", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := c.exchange.FetchOHLCV(
			market,
			ccxt.WithFetchOHLCVTimeframe("1d"),
			ccxt.WithFetchOHLCVLimit(limit),
		)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("broker: 获取 %s 日线失败: %w", base, err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return candles, nil
}

// PlaceLimitOrder 提交一笔限价单。下单不做自动重试：网络层失败时
// 无法确认订单是否已被受理，重复提交的代价远高于放弃本笔。
func (c *Client) PlaceLimitOrder(ctx context.Context, sub OrderSubmission) (OrderAck, error) {
	market := c.MarketSymbol(sub.Symbol)
	if market == "" {
		return OrderAck{}, errors.New("broker: 标的代码不能为空")
	}
	if sub.Quantity <= 0 {
		return OrderAck{}, fmt.Errorf("broker: %s 下单数量必须大于0", sub.Symbol)
	}
	if sub.LimitPrice <= 0 {
		return OrderAck{}, fmt.Errorf("broker: %s 限价必须大于0", sub.Symbol)
	}

	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return OrderAck{}, fmt.Errorf("broker: 下单前加载市场失败: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return OrderAck{}, ctxErr
	}

	side := strings.ToLower(strings.TrimSpace(sub.Side))
	params := map[string]interface{}{}
	if sub.TimeInForce != "" {
		params["timeInForce"] = sub.TimeInForce
	}

	var opts []ccxt.CreateLimitOrderOptions
	if len(params) > 0 {
		opts = append(opts, ccxt.WithCreateLimitOrderParams(params))
	}

	order, err := c.exchange.CreateLimitOrder(market, side, float64(sub.Quantity), sub.LimitPrice, opts...)
	if err != nil {
		normalized, _ := c.classifyError(err)
		c.logger.Error("限价单提交失败",
			zap.String("symbol", sub.Symbol),
			zap.String("side", sub.Side),
			zap.Int64("quantity", sub.Quantity),
			zap.Float64("limit_price", sub.LimitPrice),
			zap.Error(normalized),
		)
		return OrderAck{}, normalized
	}

	ack := convertOrder(order)
	c.logger.Info("限价单已提交",
		zap.String("symbol", sub.Symbol),
		zap.String("side", sub.Side),
		zap.Int64("quantity", sub.Quantity),
		zap.Float64("limit_price", sub.LimitPrice),
		zap.String("order_id", ack.ID),
		zap.String("status", ack.Status),
	)

	return ack, nil
}

// FetchOrderStatus 查询订单回执。
func (c *Client) FetchOrderStatus(ctx context.Context, orderID, base string) (OrderAck, error) {
	market := c.MarketSymbol(base)

	var raw ccxt.Order
	err := c.callWithRetry(ctx, "fetch_order", func() error {
		order, err := c.exchange.FetchOrder(orderID, ccxt.WithFetchOrderSymbol(market))
		if err != nil {
			return err
		}

		raw = order
		return nil
	})
	if err != nil {
		return OrderAck{}, fmt.Errorf("broker: 查询订单 %s 失败: %w", orderID, err)
	}

	return convertOrder(raw), nil
}

// CancelOrder 撤销订单。
func (c *Client) CancelOrder(ctx context.Context, orderID, base string) error {
	market := c.MarketSymbol(base)

	err := c.callWithRetry(ctx, "cancel_order", func() error {
		_, err := c.exchange.CancelOrder(orderID, ccxt.WithCancelOrderSymbol(market))
		return err
	})
	if err != nil {
		return fmt.Errorf("broker: 撤销订单 %s 失败: %w", orderID, err)
	}

	return nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	if c.marketsLoaded {
		return nil
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		_, err := c.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.String("quote_currency", c.quoteCurrency))
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("券商调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) || errors.Is(normalizedErr, ErrSessionUnusable) {
			c.logger.Warn("券商不可用",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("券商调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("券商调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "broker under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		case ccxt.AuthenticationErrorErrType,
			ccxt.AccountSuspendedErrType,
			ccxt.PermissionDeniedErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "broker session rejected"
			}
			return fmt.Errorf("%w: %s", ErrSessionUnusable, message), false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}

func convertOrder(order ccxt.Order) OrderAck {
	return OrderAck{
		ID:      derefString(order.Id),
		Status:  strings.ToLower(strings.TrimSpace(derefString(order.Status))),
		Filled:  derefFloat(order.Filled),
		Amount:  derefFloat(order.Amount),
		Average: derefFloat(order.Average),
	}
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
