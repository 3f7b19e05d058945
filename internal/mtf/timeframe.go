package mtf

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/spotcycle/internal/gateway"
	"github.com/ajitpratap0/spotcycle/internal/indicators"
)

// timeframeWeights sum to 1.0; higher timeframes dominate.
var timeframeWeights = []struct {
	tf     string
	weight float64
}{
	{"1m", 0.05},
	{"5m", 0.10},
	{"15m", 0.20},
	{"1h", 0.25},
	{"4h", 0.25},
	{"1d", 0.15},
}

// tfSignal is one timeframe's directional read.
type tfSignal struct {
	strength float64 // signed, [-1, 1]
	atrPct   float64 // ATR as a fraction of the last close
}

// analyzeTimeframe computes the signed strength for one timeframe from an
// EMA cross, the RSI level and the MACD histogram sign:
// 0.4*ema + 0.35*rsi + 0.25*macd, clamped to [-1, 1].
func analyzeTimeframe(ctx context.Context, exchange gateway.Exchange, symbol, tf string, minCandles int) (*tfSignal, error) {
	candles, err := exchange.FetchOHLCV(ctx, symbol, tf, minCandles)
	if err != nil {
		return nil, err
	}
	if len(candles) < minCandles {
		return nil, fmt.Errorf("%s %s: %d candles, need %d", symbol, tf, len(candles), minCandles)
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	ema9, err := indicators.EMA(closes, 9)
	if err != nil {
		return nil, err
	}
	ema21, err := indicators.EMA(closes, 21)
	if err != nil {
		return nil, err
	}
	rsi, err := indicators.RSI(closes, 14)
	if err != nil {
		return nil, err
	}
	_, _, hist, err := indicators.MACD(closes)
	if err != nil {
		return nil, err
	}
	atr, err := indicators.ATR(highs, lows, closes)
	if err != nil {
		return nil, err
	}

	// EMA separation normalized so a 2% gap saturates.
	emaSig := clampSigned((ema9 - ema21) / ema21 / 0.02)
	rsiSig := clampSigned((rsi - 50) / 25)
	macdSig := 0.0
	if hist > 0 {
		macdSig = 1
	} else if hist < 0 {
		macdSig = -1
	}

	strength := clampSigned(0.4*emaSig + 0.35*rsiSig + 0.25*macdSig)

	last := closes[len(closes)-1]
	atrPct := 0.0
	if last > 0 {
		atrPct = atr / last
	}

	return &tfSignal{strength: strength, atrPct: atrPct}, nil
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
