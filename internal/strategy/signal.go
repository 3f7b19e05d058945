// Package strategy produces the single-timeframe base trading signal from
// classic momentum and mean-reversion indicators on 15-minute candles.
package strategy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/spotcycle/internal/gateway"
	"github.com/ajitpratap0/spotcycle/internal/indicators"
)

// Decision is the base signal's action.
type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
	DecisionHold Decision = "HOLD"
)

// TradingSignal is the evaluator's output.
type TradingSignal struct {
	Decision   Decision
	Confidence float64 // [0, 1]
}

const (
	signalTimeframe = "15m"
	entryThreshold  = 0.15
)

// Evaluator computes base signals.
type Evaluator struct {
	exchange   gateway.Exchange
	minCandles int
}

// NewEvaluator creates an evaluator requiring minCandles of 15m history.
func NewEvaluator(exchange gateway.Exchange, minCandles int) *Evaluator {
	if minCandles <= 0 {
		minCandles = 200
	}
	return &Evaluator{exchange: exchange, minCandles: minCandles}
}

// Evaluate scores symbol on the 15m timeframe. The composite is trend
// following (EMA cross, MACD histogram, RSI centerline) tempered by the
// price's stretch inside the Bollinger channel:
// 0.30*ema + 0.30*macd + 0.25*rsi + 0.15*bollinger.
func (e *Evaluator) Evaluate(ctx context.Context, symbol string) (*TradingSignal, error) {
	candles, err := e.exchange.FetchOHLCV(ctx, symbol, signalTimeframe, e.minCandles)
	if err != nil {
		return nil, fmt.Errorf("base signal %s: %w", symbol, err)
	}
	if len(candles) < e.minCandles {
		return nil, fmt.Errorf("base signal %s: %d candles, need %d", symbol, len(candles), e.minCandles)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	last := closes[len(closes)-1]

	ema9, err := indicators.EMA(closes, 9)
	if err != nil {
		return nil, err
	}
	ema21, err := indicators.EMA(closes, 21)
	if err != nil {
		return nil, err
	}
	_, _, hist, err := indicators.MACD(closes)
	if err != nil {
		return nil, err
	}
	rsi, err := indicators.RSI(closes, 14)
	if err != nil {
		return nil, err
	}
	lower, _, upper, err := indicators.BollingerBands(closes, 20)
	if err != nil {
		return nil, err
	}

	emaSig := clampSigned((ema9 - ema21) / ema21 / 0.02)

	// Histogram normalized by price so noise-level values stay near zero; a
	// tenth of a percent of price saturates.
	macdSig := clampSigned(hist / (0.001 * last))

	rsiSig := clampSigned((rsi - 50) / 25)

	// Position inside the Bollinger channel, -1 at the lower band to +1 at
	// the upper; reversed so a stretched price argues against chasing it.
	bbSig := 0.0
	if upper > lower {
		bbSig = -clampSigned(2*(last-lower)/(upper-lower) - 1)
	}

	score := 0.30*emaSig + 0.30*macdSig + 0.25*rsiSig + 0.15*bbSig

	signal := &TradingSignal{Decision: DecisionHold}
	switch {
	case score > entryThreshold:
		signal.Decision = DecisionBuy
	case score < -entryThreshold:
		signal.Decision = DecisionSell
	}
	if signal.Decision != DecisionHold {
		signal.Confidence = clamp01(0.45 + 0.55*abs(score))
	}

	log.Debug().
		Str("symbol", symbol).
		Float64("score", score).
		Str("decision", string(signal.Decision)).
		Float64("confidence", signal.Confidence).
		Msg("Base signal evaluated")

	return signal, nil
}

func clampSigned(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
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

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
