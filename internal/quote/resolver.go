package quote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"catalyst-trader/internal/broker"
	"catalyst-trader/internal/config"
)

// ErrPriceUnavailable 表示在等待窗口内未能取得可用参考价。
var ErrPriceUnavailable = errors.New("quote: 参考价不可用")

// Reference 是一次参考价解析的结果。Price 为最终采用的价格：
// 优先买卖盘中间价，窗口内始终无双边报价时回退到最新成交价。
type Reference struct {
	Symbol string
	Bid    float64
	Ask    float64
	Last   float64
	Price  float64
	Source string // mid / last
	At     time.Time
}

type tickerClient interface {
	FetchTicker(ctx context.Context, base string) (broker.Ticker, error)
}

// Resolver 负责在限定时间内解析标的参考价。
type Resolver struct {
	client tickerClient
	cfg    config.QuoteConfig
	logger *zap.Logger
}

// NewResolver 创建参考价解析器。
func NewResolver(client tickerClient, cfg config.QuoteConfig, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Resolve 轮询行情直到取得双边报价或超出等待窗口。
// 双边报价始终未出现时，若期间见过最新成交价则以其兜底。
func (r *Resolver) Resolve(ctx context.Context, symbol string) (Reference, error) {
	symbol = broker.BaseSymbol(symbol)
	if symbol == "" {
		return Reference{}, fmt.Errorf("%w: 标的代码为空", ErrPriceUnavailable)
	}

	deadline := time.Now().Add(r.cfg.MaxWait)
	var fallback Reference

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Reference{}, ctxErr
		}

		ticker, err := r.client.FetchTicker(ctx, symbol)
		if err != nil {
			r.logger.Warn("行情获取失败，继续等待",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
		} else {
			if ticker.Bid > 0 && ticker.Ask > 0 {
				mid := (ticker.Bid + ticker.Ask) / 2
				return Reference{
					Symbol: symbol,
					Bid:    ticker.Bid,
					Ask:    ticker.Ask,
					Last:   ticker.Last,
					Price:  mid,
					Source: "mid",
					At:     ticker.At,
				}, nil
			}
			if ticker.Last > 0 {
				fallback = Reference{
					Symbol: symbol,
					Bid:    ticker.Bid,
					Ask:    ticker.Ask,
					Last:   ticker.Last,
					Price:  ticker.Last,
					Source: "last",
					At:     ticker.At,
				}
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		wait := r.cfg.PollInterval
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Reference{}, ctx.Err()
		case <-timer.C:
		}
	}

	if fallback.Price > 0 {
		r.logger.Info("双边报价未出现，回退到最新成交价",
			zap.String("symbol", symbol),
			zap.Float64("last", fallback.Last),
		)
		return fallback, nil
	}

	return Reference{}, fmt.Errorf("%w: %s 在 %s 内无可用报价", ErrPriceUnavailable, symbol, r.cfg.MaxWait)
}

// ResolveAll 并发解析一组标的的参考价，失败的标的不会出现在结果中。
func (r *Resolver) ResolveAll(ctx context.Context, symbols []string) (map[string]Reference, error) {
	results := make(map[string]Reference, len(symbols))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	workers := r.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	group.SetLimit(workers)

	seen := make(map[string]struct{}, len(symbols))
	for _, raw := range symbols {
		symbol := broker.BaseSymbol(raw)
		if symbol == "" {
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}

		group.Go(func() error {
			ref, err := r.Resolve(groupCtx, symbol)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				r.logger.Warn("参考价解析失败",
					zap.String("symbol", symbol),
					zap.Error(err),
				)
				return nil
			}

			mu.Lock()
			results[symbol] = ref
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("quote: 批量解析参考价中断: %w", err)
	}

	return results, nil
}
