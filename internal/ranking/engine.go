// Package ranking scores candidate symbols across six factors with
// regime-dependent weights and returns the sorted valid scores. Any missing
// sub-score drops the symbol; nothing is defaulted.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/spotcycle/internal/gateway"
	"github.com/ajitpratap0/spotcycle/internal/marketdata"
	"github.com/ajitpratap0/spotcycle/internal/metrics"
)

const (
	trendCandleCount  = 20
	trendTimeframe    = "15m"
	scoreChangeNotify = 0.10
)

// Asset class base risk. Unknown bases score nothing; the symbol is dropped.
var assetClassRisk = map[string]float64{
	// majors
	"BTC": 0.2, "ETH": 0.2, "SOL": 0.2, "BNB": 0.2, "XRP": 0.2,
	"ADA": 0.2, "AVAX": 0.2, "DOT": 0.2, "LINK": 0.2, "LTC": 0.2,
	// stablecoins
	"USDT": 0.1, "USDC": 0.1, "DAI": 0.1, "FDUSD": 0.1, "TUSD": 0.1,
	// meme
	"DOGE": 0.9, "SHIB": 0.9, "PEPE": 0.9, "WIF": 0.9, "BONK": 0.9, "FLOKI": 0.9,
}

// TokenScore is one symbol's factor breakdown; every field is in [0,1].
type TokenScore struct {
	Symbol     string  `yaml:"symbol"`
	Liquidity  float64 `yaml:"liquidity"`
	Momentum   float64 `yaml:"momentum"`
	Macro      float64 `yaml:"macro_sentiment"`
	Onchain    float64 `yaml:"onchain"`
	Volatility float64 `yaml:"volatility"`
	Trend      float64 `yaml:"trend"`
	Risk       float64 `yaml:"risk"`
	Total      float64 `yaml:"total"`
}

// OnchainProvider supplies the on-chain activity sub-score. A provider error
// drops the symbol for the cycle.
type OnchainProvider interface {
	Score(ctx context.Context, symbol string) (float64, error)
}

// NeutralOnchain is the stand-in used when no on-chain data source is
// configured; it scores every symbol 0.5.
type NeutralOnchain struct{}

func (NeutralOnchain) Score(context.Context, string) (float64, error) { return 0.5, nil }

// Engine computes ranked TokenScores. It keeps only a previous-scores map
// between cycles, used to emit change telemetry; results are never cached.
type Engine struct {
	exchange gateway.Exchange
	provider *marketdata.Provider
	onchain  OnchainProvider

	mu         sync.Mutex
	sentiment  map[string]float64 // macro sentiment by base asset
	prevScores map[string]float64
	extraRisk  map[string]float64 // config-supplied asset class extensions
}

// NewEngine creates a ranking engine. onchain may be nil; a neutral provider
// is substituted.
func NewEngine(exchange gateway.Exchange, provider *marketdata.Provider, onchain OnchainProvider, extraRisk map[string]float64) *Engine {
	if onchain == nil {
		onchain = NeutralOnchain{}
	}
	return &Engine{
		exchange:   exchange,
		provider:   provider,
		onchain:    onchain,
		prevScores: make(map[string]float64),
		extraRisk:  extraRisk,
	}
}

// SetSentiment injects the macro sentiment map for the coming cycle, keyed by
// base asset with values in [0,1].
func (e *Engine) SetSentiment(sentiment map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sentiment = sentiment
}

// Rank scores candidates under regime and returns valid scores sorted by
// total descending. Symbols whose data is unavailable or whose asset class
// is unknown are skipped with a log entry.
func (e *Engine) Rank(ctx context.Context, candidates []string, regime Regime) []TokenScore {
	w, ok := weights[regime]
	if !ok {
		w = weights[RegimeNeutral]
	}

	scores := make([]TokenScore, 0, len(candidates))
	for _, symbol := range candidates {
		score, err := e.score(ctx, symbol, w)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Symbol dropped from ranking")
			continue
		}
		scores = append(scores, *score)
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Total > scores[j].Total })
	e.emitChanges(scores)

	log.Info().
		Int("candidates", len(candidates)).
		Int("scored", len(scores)).
		Str("regime", string(regime)).
		Msg("Ranking complete")

	return scores
}

func (e *Engine) score(ctx context.Context, symbol string, w factorWeights) (*TokenScore, error) {
	snap, err := e.provider.GetSnapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}

	base := gateway.BaseAsset(symbol)
	classRisk, ok := e.classRisk(base)
	if !ok {
		return nil, fmt.Errorf("unknown asset class for %s", base)
	}

	onchain, err := e.onchain.Score(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("onchain score: %w", err)
	}

	trend, err := e.trendStrength(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("trend strength: %w", err)
	}

	change := snap.Ticker.Change24h()
	momentum := momentumScore(change, snap.Ticker.QuoteVolume24h)
	macro := e.macroScore(base, change)

	risk := 0.4*(1-snap.Volatility) + 0.4*(1-snap.Liquidity) + 0.2*classRisk

	weighted := w.Liquidity*snap.Liquidity +
		w.Momentum*momentum +
		w.Macro*macro +
		w.Onchain*onchain +
		w.Volatility*snap.Volatility +
		w.Trend*trend
	total := clamp01(weighted * (1 - 0.3*(risk-0.5)))

	return &TokenScore{
		Symbol:     symbol,
		Liquidity:  snap.Liquidity,
		Momentum:   momentum,
		Macro:      macro,
		Onchain:    onchain,
		Volatility: snap.Volatility,
		Trend:      trend,
		Risk:       risk,
		Total:      total,
	}, nil
}

func (e *Engine) classRisk(base string) (float64, bool) {
	if r, ok := assetClassRisk[strings.ToUpper(base)]; ok {
		return r, true
	}
	if r, ok := e.extraRisk[strings.ToUpper(base)]; ok {
		return r, true
	}
	return 0, false
}

// momentumScore blends the clamped 24h return with a volume weight: a move
// on real volume ranks above the same move on a dead book.
func momentumScore(change, quoteVolumeUSD float64) float64 {
	if change > 0.15 {
		change = 0.15
	}
	if change < -0.15 {
		change = -0.15
	}
	returnScore := clamp01(0.5 + change/0.3)
	volumeScore := clamp01(quoteVolumeUSD / 1e8)
	return clamp01(0.7*returnScore + 0.3*volumeScore)
}

// macroScore starts from the injected sentiment (0.5 when absent) and shifts
// it by up to 0.15 in the direction of observed momentum.
func (e *Engine) macroScore(base string, change float64) float64 {
	e.mu.Lock()
	s, ok := e.sentiment[strings.ToUpper(base)]
	e.mu.Unlock()
	if !ok {
		s = 0.5
	}

	shift := change / 0.10
	if shift > 1 {
		shift = 1
	}
	if shift < -1 {
		shift = -1
	}
	return clamp01(s + 0.15*shift)
}

// trendStrength is the average signed body/range ratio of recent 15m candles
// mapped to [0,1]; 0.5 is directionless.
func (e *Engine) trendStrength(ctx context.Context, symbol string) (float64, error) {
	candles, err := e.exchange.FetchOHLCV(ctx, symbol, trendTimeframe, trendCandleCount)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("no candles for %s", symbol)
	}

	var sum float64
	var n int
	for _, c := range candles {
		rng := c.High - c.Low
		if rng <= 0 {
			continue
		}
		sum += (c.Close - c.Open) / rng
		n++
	}
	if n == 0 {
		return 0.5, nil
	}
	return clamp01(0.5 + 0.5*(sum/float64(n))), nil
}

// emitChanges logs symbols whose total moved at least 0.10 since the last
// cycle, then replaces the previous-scores map.
func (e *Engine) emitChanges(scores []TokenScore) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]float64, len(scores))
	for _, s := range scores {
		if prev, ok := e.prevScores[s.Symbol]; ok {
			delta := s.Total - prev
			if delta >= scoreChangeNotify || delta <= -scoreChangeNotify {
				log.Info().
					Str("symbol", s.Symbol).
					Float64("previous", prev).
					Float64("current", s.Total).
					Float64("delta", delta).
					Msg("Ranking score moved")
				metrics.IncScoreChange()
			}
		}
		next[s.Symbol] = s.Total
	}
	e.prevScores = next
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
