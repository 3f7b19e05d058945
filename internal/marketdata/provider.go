// Package marketdata builds validated per-symbol snapshots of exchange state
// with derived liquidity and volatility scores. Snapshots are served from a
// short-lived in-memory cache so one cycle's lookups hit the wire once.
package marketdata

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/spotcycle/internal/gateway"
)

const (
	bookDepth = 20

	// Liquidity sub-score saturation points.
	volumeSaturationUSD = 1e8 // 24h quote volume treated as fully liquid
	depthSaturationUSD  = 5e5 // top-of-book notional treated as fully deep
	spreadCapBps        = 50  // spreads at or beyond this score zero

	// Volatility comfort band on the 24h range.
	volBandLow  = 0.02
	volBandHigh = 0.08
	volHardCap  = 0.20
)

// Snapshot is one symbol's validated market state at fetch time.
type Snapshot struct {
	Symbol     string
	Ticker     gateway.Ticker
	Book       gateway.OrderBook
	Liquidity  float64 // 0..1
	Volatility float64 // 0..1
	FetchedAt  time.Time
}

// Provider fetches and scores snapshots through a TTL cache.
type Provider struct {
	exchange gateway.Exchange
	cache    *snapshotCache
}

// NewProvider creates a provider caching snapshots for ttl.
func NewProvider(exchange gateway.Exchange, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Provider{
		exchange: exchange,
		cache:    newSnapshotCache(ttl),
	}
}

// GetSnapshot returns the cached snapshot for symbol, fetching a fresh one
// when the cache entry is missing or expired. Invalid exchange data is an
// error; no minimum or default scores are substituted.
func (p *Provider) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	if snap, ok := p.cache.get(symbol); ok {
		return snap, nil
	}

	ticker, err := p.exchange.FetchTicker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: ticker: %w", symbol, err)
	}
	book, err := p.exchange.FetchOrderBook(ctx, symbol, bookDepth)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: order book: %w", symbol, err)
	}

	if err := validate(symbol, ticker, book); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Symbol:     symbol,
		Ticker:     *ticker,
		Book:       *book,
		Liquidity:  liquidityScore(ticker, book),
		Volatility: volatilityScore(ticker),
		FetchedAt:  time.Now(),
	}
	p.cache.put(symbol, snap)

	log.Debug().
		Str("symbol", symbol).
		Float64("liquidity", snap.Liquidity).
		Float64("volatility", snap.Volatility).
		Msg("Market snapshot built")

	return snap, nil
}

// Invalidate drops the cached snapshot for symbol.
func (p *Provider) Invalidate(symbol string) {
	p.cache.invalidate(symbol)
}

// validate rejects snapshots built from malformed exchange data.
func validate(symbol string, t *gateway.Ticker, book *gateway.OrderBook) error {
	if t.Last <= 0 {
		return fmt.Errorf("snapshot %s: non-positive last price %f", symbol, t.Last)
	}
	if t.Bid <= 0 || t.Ask <= 0 {
		return fmt.Errorf("snapshot %s: missing bid/ask", symbol)
	}
	if t.Ask < t.Bid {
		return fmt.Errorf("snapshot %s: crossed book, bid %f > ask %f", symbol, t.Bid, t.Ask)
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return fmt.Errorf("snapshot %s: empty order book side", symbol)
	}
	for _, lvl := range book.Bids {
		if lvl.Price <= 0 || lvl.Size <= 0 {
			return fmt.Errorf("snapshot %s: non-positive bid level", symbol)
		}
	}
	for _, lvl := range book.Asks {
		if lvl.Price <= 0 || lvl.Size <= 0 {
			return fmt.Errorf("snapshot %s: non-positive ask level", symbol)
		}
	}
	return nil
}

// liquidityScore combines book depth, 24h volume and spread tightness:
// 0.45*depth + 0.30*volume + 0.25*spread, each sub-score clamped to [0,1].
// Volume is scored on a log10 scale so mid-volume symbols keep a meaningful
// share of the term instead of vanishing against the saturation point.
func liquidityScore(t *gateway.Ticker, book *gateway.OrderBook) float64 {
	var depthUSD float64
	for _, lvl := range book.Bids {
		depthUSD += lvl.Price * lvl.Size
	}
	for _, lvl := range book.Asks {
		depthUSD += lvl.Price * lvl.Size
	}
	depth := clamp01(depthUSD / depthSaturationUSD)

	volume := clamp01(math.Log10(math.Max(1, t.QuoteVolume24h)) / math.Log10(volumeSaturationUSD))

	mid := (t.Bid + t.Ask) / 2
	spreadBps := (t.Ask - t.Bid) / mid * 10000
	spread := clamp01(1 - spreadBps/spreadCapBps)

	return 0.45*depth + 0.30*volume + 0.25*spread
}

// volatilityScore maps the 24h high-low range to a tradability score: ranges
// inside [2%, 8%] score 1.0, quieter markets ramp up linearly, and wilder
// markets fall off linearly to zero at 20%.
func volatilityScore(t *gateway.Ticker) float64 {
	if t.High24h <= 0 || t.Low24h <= 0 || t.Last <= 0 {
		return 0
	}
	rng := (t.High24h - t.Low24h) / t.Last
	switch {
	case rng < volBandLow:
		return clamp01(rng / volBandLow)
	case rng <= volBandHigh:
		return 1.0
	case rng >= volHardCap:
		return 0
	default:
		return clamp01((volHardCap - rng) / (volHardCap - volBandHigh))
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
