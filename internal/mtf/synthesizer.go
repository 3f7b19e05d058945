// Package mtf combines per-timeframe directional signals into a single
// multi-timeframe read of trend, confidence, confluence and risk.
package mtf

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/spotcycle/internal/gateway"
)

// Trend is the synthesized direction.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// RiskLevel bands the dominant-timeframe ATR%.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const (
	atrPctHigh   = 0.05
	atrPctMedium = 0.02
)

// TimeframeRead is one timeframe's contribution to the signal.
type TimeframeRead struct {
	Trend    Trend
	Strength float64 // signed, [-1, 1]
}

// Signal is the synthesized multi-timeframe view of one symbol.
type Signal struct {
	Trend        Trend
	Confidence   float64 // [0, 1]
	Confluence   float64 // [0, 1]; 0 means complete disagreement
	Risk         RiskLevel
	PerTimeframe map[string]TimeframeRead
}

// Synthesizer builds Signals from exchange candles.
type Synthesizer struct {
	exchange   gateway.Exchange
	minCandles int
}

// NewSynthesizer creates a synthesizer requiring minCandles per timeframe.
func NewSynthesizer(exchange gateway.Exchange, minCandles int) *Synthesizer {
	if minCandles <= 0 {
		minCandles = 200
	}
	return &Synthesizer{exchange: exchange, minCandles: minCandles}
}

// Analyze produces the Signal for one symbol. Timeframes with too little
// history are dropped with a warning; when every timeframe drops, the signal
// is neutral with zero confluence so the decision gate holds.
func (s *Synthesizer) Analyze(ctx context.Context, symbol string) *Signal {
	per := make(map[string]float64, len(timeframeWeights))
	atrByTf := make(map[string]float64, len(timeframeWeights))
	for _, tw := range timeframeWeights {
		sig, err := analyzeTimeframe(ctx, s.exchange, symbol, tw.tf, s.minCandles)
		if err != nil {
			log.Warn().
				Err(err).
				Str("symbol", symbol).
				Str("timeframe", tw.tf).
				Msg("Timeframe dropped")
			continue
		}
		per[tw.tf] = sig.strength
		atrByTf[tw.tf] = sig.atrPct
	}

	signal := synthesize(per, dominantATRPct(per, atrByTf))

	log.Debug().
		Str("symbol", symbol).
		Str("trend", string(signal.Trend)).
		Float64("confidence", signal.Confidence).
		Float64("confluence", signal.Confluence).
		Str("risk", string(signal.Risk)).
		Int("timeframes", len(per)).
		Msg("Multi-timeframe signal synthesized")

	return signal
}

// dominantATRPct returns the ATR% of the highest-weighted included timeframe.
func dominantATRPct(per map[string]float64, atrByTf map[string]float64) float64 {
	best := -1.0
	atr := 0.0
	for _, tw := range timeframeWeights {
		if _, ok := per[tw.tf]; !ok {
			continue
		}
		if tw.weight > best {
			best = tw.weight
			atr = atrByTf[tw.tf]
		}
	}
	return atr
}

// synthesize is the pure combination step, separated so the weighting math is
// testable without an exchange.
func synthesize(per map[string]float64, dominantATRPct float64) *Signal {
	signal := &Signal{
		Trend:        TrendNeutral,
		Risk:         RiskHigh,
		PerTimeframe: make(map[string]TimeframeRead, len(per)),
	}
	if len(per) == 0 {
		return signal
	}

	var bullW, bearW, weightSum, magnitudeSum float64
	for _, tw := range timeframeWeights {
		strength, ok := per[tw.tf]
		if !ok {
			continue
		}
		if strength > 0 {
			bullW += tw.weight * strength
		} else {
			bearW += tw.weight * -strength
		}
		weightSum += tw.weight
		magnitudeSum += tw.weight * abs(strength)

		read := TimeframeRead{Trend: TrendNeutral, Strength: strength}
		if strength > 0 {
			read.Trend = TrendBullish
		} else if strength < 0 {
			read.Trend = TrendBearish
		}
		signal.PerTimeframe[tw.tf] = read
	}

	switch {
	case bullW > 1.2*bearW:
		signal.Trend = TrendBullish
	case bearW > 1.2*bullW:
		signal.Trend = TrendBearish
	}

	if total := bullW + bearW; total > 0 {
		dominant := bullW
		if bearW > dominant {
			dominant = bearW
		}
		signal.Confluence = (dominant/total - 0.5) * 2
	}

	if weightSum > 0 {
		signal.Confidence = magnitudeSum / weightSum
	}

	switch {
	case dominantATRPct > atrPctHigh:
		signal.Risk = RiskHigh
	case dominantATRPct > atrPctMedium:
		signal.Risk = RiskMedium
	default:
		signal.Risk = RiskLow
	}

	return signal
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
