package ranking

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Regime is the coarse market label that selects the scoring weight table.
type Regime string

const (
	RegimeNeutral  Regime = "neutral"
	RegimeTrending Regime = "trending"
	RegimeVolatile Regime = "volatile"
	RegimeRanging  Regime = "ranging"
)

// bellwethers drive regime detection.
var bellwethers = []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}

// weights are the per-regime factor weights; each row sums to 1.0.
var weights = map[Regime]factorWeights{
	RegimeNeutral:  {Liquidity: 0.25, Momentum: 0.30, Macro: 0.15, Onchain: 0.10, Volatility: 0.10, Trend: 0.10},
	RegimeTrending: {Liquidity: 0.15, Momentum: 0.40, Macro: 0.05, Onchain: 0.10, Volatility: 0.10, Trend: 0.20},
	RegimeVolatile: {Liquidity: 0.40, Momentum: 0.15, Macro: 0.15, Onchain: 0.10, Volatility: 0.20, Trend: 0.00},
	RegimeRanging:  {Liquidity: 0.25, Momentum: 0.20, Macro: 0.25, Onchain: 0.10, Volatility: 0.15, Trend: 0.05},
}

type factorWeights struct {
	Liquidity  float64
	Momentum   float64
	Macro      float64
	Onchain    float64
	Volatility float64
	Trend      float64
}

func (w factorWeights) sum() float64 {
	return w.Liquidity + w.Momentum + w.Macro + w.Onchain + w.Volatility + w.Trend
}

// DetectRegime classifies the market from the bellwethers' average 24h move.
// With no bellwether data at all, the regime is neutral.
func (e *Engine) DetectRegime(ctx context.Context) Regime {
	var sum float64
	var n int
	for _, symbol := range bellwethers {
		ticker, err := e.exchange.FetchTicker(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Bellwether ticker unavailable")
			continue
		}
		sum += ticker.Change24h() * 100
		n++
	}
	if n == 0 {
		return RegimeNeutral
	}

	m := sum / float64(n)
	regime := RegimeRanging
	switch {
	case m > 5 || m < -5:
		regime = RegimeTrending
	case m > 2 || m < -2:
		regime = RegimeVolatile
	}

	log.Info().
		Float64("avg_change_pct", m).
		Str("regime", string(regime)).
		Msg("Market regime detected")

	return regime
}
