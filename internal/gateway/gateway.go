package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/spotcycle/internal/metrics"
)

// Breaker names, one per endpoint family. A market-data outage must not
// block order placement, so each family trips independently.
const (
	breakerMarketData = "market_data"
	breakerTrading    = "trading"
	breakerAccount    = "account"
)

// Config holds the gateway throttling knobs.
type Config struct {
	RateLimitPerSecond float64       // token refill rate, shared by all endpoints
	QuoteCurrency      string        // e.g. "USDT"
	BreakerTimeout     time.Duration // open-to-half-open delay, 0 means 30s
}

// Gateway wraps a wire Client with a shared token-bucket rate limiter and
// per-endpoint-family circuit breakers. It implements Exchange.
type Gateway struct {
	client  Client
	limiter *rate.Limiter
	quote   string

	marketData *gobreaker.CircuitBreaker
	trading    *gobreaker.CircuitBreaker
	account    *gobreaker.CircuitBreaker

	markets sync.Map // symbol -> *Market
	group   singleflight.Group
}

// New wraps client with rate limiting and circuit breaking.
func New(client Client, cfg Config) *Gateway {
	perSec := cfg.RateLimitPerSecond
	if perSec <= 0 {
		perSec = 15
	}
	quote := strings.ToUpper(cfg.QuoteCurrency)
	if quote == "" {
		quote = "USDT"
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	g := &Gateway{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		quote:   quote,
	}
	g.marketData = newBreaker(breakerMarketData, timeout)
	g.trading = newBreaker(breakerTrading, timeout)
	g.account = newBreaker(breakerAccount, timeout)

	log.Info().
		Float64("rate_limit_per_s", perSec).
		Str("quote", quote).
		Msg("Exchange gateway initialized")

	return g
}

// newBreaker builds a breaker that opens after 3 consecutive failures and
// allows a single probe once timeout elapses.
func newBreaker(name string, timeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			metrics.SetBreakerState(name, to.String())
		},
	})
}

// call dispatches fn through the limiter and the given breaker.
func (g *Gateway) call(ctx context.Context, cb *gobreaker.CircuitBreaker, fn func() (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	out, err := cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", cb.Name(), ErrCircuitOpen)
	}
	return out, err
}

func (g *Gateway) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	out, err := g.call(ctx, g.marketData, func() (interface{}, error) {
		return g.client.FetchTicker(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Ticker), nil
}

func (g *Gateway) FetchTickers(ctx context.Context) ([]Ticker, error) {
	out, err := g.call(ctx, g.marketData, func() (interface{}, error) {
		return g.client.FetchTickers(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Ticker), nil
}

func (g *Gateway) FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	out, err := g.call(ctx, g.marketData, func() (interface{}, error) {
		return g.client.FetchOrderBook(ctx, symbol, depth)
	})
	if err != nil {
		return nil, err
	}
	return out.(*OrderBook), nil
}

func (g *Gateway) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	out, err := g.call(ctx, g.marketData, func() (interface{}, error) {
		return g.client.FetchOHLCV(ctx, symbol, timeframe, limit)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Candle), nil
}

func (g *Gateway) FetchBalance(ctx context.Context) (map[string]Balance, error) {
	out, err := g.call(ctx, g.account, func() (interface{}, error) {
		return g.client.FetchBalance(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.(map[string]Balance), nil
}

func (g *Gateway) FetchOpenOrders(ctx context.Context) ([]Order, error) {
	out, err := g.call(ctx, g.account, func() (interface{}, error) {
		return g.client.FetchOpenOrders(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Order), nil
}

func (g *Gateway) FetchAlgoOrders(ctx context.Context, kind string) ([]AlgoOrder, error) {
	out, err := g.call(ctx, g.account, func() (interface{}, error) {
		return g.client.FetchAlgoOrders(ctx, kind)
	})
	if err != nil {
		return nil, err
	}
	return out.([]AlgoOrder), nil
}

func (g *Gateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	out, err := g.call(ctx, g.trading, func() (interface{}, error) {
		return g.client.CreateOrder(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Order), nil
}

func (g *Gateway) CreateAlgoOrder(ctx context.Context, req AlgoOrderRequest) (*AlgoOrderResult, error) {
	out, err := g.call(ctx, g.trading, func() (interface{}, error) {
		return g.client.CreateAlgoOrder(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*AlgoOrderResult), nil
}

func (g *Gateway) CancelAlgoOrder(ctx context.Context, algoID, symbol string) error {
	_, err := g.call(ctx, g.trading, func() (interface{}, error) {
		return nil, g.client.CancelAlgoOrder(ctx, algoID, symbol)
	})
	return err
}

// FetchMarket returns market metadata through a process-lifetime cache.
// Concurrent misses for the same symbol collapse into one wire call.
func (g *Gateway) FetchMarket(ctx context.Context, symbol string) (*Market, error) {
	if m, ok := g.markets.Load(symbol); ok {
		return m.(*Market), nil
	}
	out, err, _ := g.group.Do(symbol, func() (interface{}, error) {
		res, err := g.call(ctx, g.marketData, func() (interface{}, error) {
			return g.client.FetchMarket(ctx, symbol)
		})
		if err != nil {
			return nil, err
		}
		g.markets.Store(symbol, res.(*Market))
		return res, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoMarket, symbol, err)
	}
	return out.(*Market), nil
}

// DiscoverLiquidSymbols returns quote-currency symbols above the volume floor,
// highest 24h quote volume first, capped at limit.
func (g *Gateway) DiscoverLiquidSymbols(ctx context.Context, minQuoteVolumeUSD float64, limit int) ([]string, error) {
	tickers, err := g.FetchTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover symbols: %w", err)
	}

	suffix := "/" + g.quote
	type cand struct {
		symbol string
		volume float64
	}
	cands := make([]cand, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, suffix) {
			continue
		}
		if t.QuoteVolume24h < minQuoteVolumeUSD {
			continue
		}
		cands = append(cands, cand{symbol: t.Symbol, volume: t.QuoteVolume24h})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].volume > cands[j].volume })

	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	symbols := make([]string, len(cands))
	for i, c := range cands {
		symbols[i] = c.symbol
	}

	log.Debug().
		Int("candidates", len(symbols)).
		Float64("min_quote_volume_usd", minQuoteVolumeUSD).
		Msg("Liquid symbol discovery complete")

	return symbols, nil
}
