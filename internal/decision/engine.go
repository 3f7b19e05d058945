// Package decision fuses the base signal, the multi-timeframe signal and the
// macro context into the final tradeable action, with a dynamic required
// confidence the combined signal must beat.
package decision

import (
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/spotcycle/internal/macro"
	"github.com/ajitpratap0/spotcycle/internal/metrics"
	"github.com/ajitpratap0/spotcycle/internal/mtf"
	"github.com/ajitpratap0/spotcycle/internal/ranking"
	"github.com/ajitpratap0/spotcycle/internal/strategy"
)

const (
	baseThreshold      = 0.30
	confluenceHardGate = 0.70
)

// regimeThresholds override the base threshold when the regime is known.
var regimeThresholds = map[ranking.Regime]float64{
	ranking.RegimeTrending: 0.40,
	ranking.RegimeRanging:  0.55,
	ranking.RegimeVolatile: 0.70,
}

// Result is one symbol's final decision with the inputs needed to reproduce
// it from logs.
type Result struct {
	Action   strategy.Decision
	Required float64
	Combined float64
	Reason   string
}

// Engine applies the decision rules. It is stateless.
type Engine struct{}

// NewEngine creates a decision engine.
func NewEngine() *Engine { return &Engine{} }

// Decide produces the final action for one symbol. macroCtx and structure may
// be nil when unavailable; absence never blocks a decision, it only leaves
// the corresponding threshold adjustment unapplied.
func (e *Engine) Decide(symbol string, base *strategy.TradingSignal, signal *mtf.Signal, macroCtx *macro.Context, structure *float64, regime ranking.Regime) *Result {
	required := baseThreshold
	if t, ok := regimeThresholds[regime]; ok {
		required = t
	}

	if signal.Confluence > 0.8 {
		required *= 0.80
	} else if signal.Confluence < 0.4 {
		required *= 1.20
	}
	if macroCtx != nil && macroCtx.RecommendedExposure < 0.5 {
		required *= 1.20
	}
	if structure != nil {
		if *structure < 0.3 {
			required *= 1.15
		} else if *structure > 0.7 {
			required *= 0.90
		}
	}

	combined := 0.6*base.Confidence + 0.4*signal.Confidence

	res := &Result{Action: strategy.DecisionHold, Required: required, Combined: combined}
	switch {
	case signal.Confluence < confluenceHardGate:
		res.Reason = "confluence below hard gate"
	case combined < required:
		res.Reason = "combined confidence below required"
	case base.Decision == strategy.DecisionBuy && signal.Trend == mtf.TrendBullish:
		res.Action = strategy.DecisionBuy
		res.Reason = "base and timeframes aligned bullish"
	case base.Decision == strategy.DecisionSell && signal.Trend == mtf.TrendBearish:
		res.Action = strategy.DecisionSell
		res.Reason = "base and timeframes aligned bearish"
	default:
		res.Reason = "base and timeframes disagree"
	}

	log.Info().
		Str("symbol", symbol).
		Str("action", string(res.Action)).
		Float64("required", res.Required).
		Float64("combined", res.Combined).
		Float64("confluence", signal.Confluence).
		Str("regime", string(regime)).
		Str("reason", res.Reason).
		Msg("Decision made")
	metrics.ObserveDecision(string(res.Action))

	return res
}
