// Package risk computes ATR-based protective levels and position sizes.
// Every computation either succeeds with real inputs or returns
// ErrInsufficientData; no synthetic sizes or levels are produced.
package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/spotcycle/internal/gateway"
	"github.com/ajitpratap0/spotcycle/internal/indicators"
)

// ErrInsufficientData signals that a level or size could not be computed
// from real market data. Callers abort the trade.
var ErrInsufficientData = errors.New("insufficient data for risk computation")

const (
	atrTimeframe   = "15m"
	atrCandleCount = 50

	stopLossATRMultiple   = 1.5
	takeProfitATRMultiple = 3.0
)

// Levels are the protective prices for a long position.
type Levels struct {
	StopLoss   float64
	TakeProfit float64
}

// Sizer turns equity and volatility into order notionals.
type Sizer struct {
	exchange     gateway.Exchange
	riskPerTrade float64 // fraction of equity risked per trade
	maxNotional  float64 // hard cap per market order
	kelly        *KellyTracker
}

// NewSizer creates a sizer. kelly may be nil to disable the adjustment.
func NewSizer(exchange gateway.Exchange, riskPerTrade, maxNotional float64, kelly *KellyTracker) *Sizer {
	if riskPerTrade <= 0 {
		riskPerTrade = 0.01
	}
	if maxNotional <= 0 {
		maxNotional = 1000
	}
	return &Sizer{
		exchange:     exchange,
		riskPerTrade: riskPerTrade,
		maxNotional:  maxNotional,
		kelly:        kelly,
	}
}

// ATR15 returns the current 15-minute ATR for symbol.
func (s *Sizer) ATR15(ctx context.Context, symbol string) (float64, error) {
	candles, err := s.exchange.FetchOHLCV(ctx, symbol, atrTimeframe, atrCandleCount)
	if err != nil {
		return 0, fmt.Errorf("atr %s: %w", symbol, err)
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	atr, err := indicators.ATR(highs, lows, closes)
	if err != nil {
		return 0, fmt.Errorf("atr %s: %w", symbol, ErrInsufficientData)
	}
	return atr, nil
}

// ProtectiveLevels derives stop-loss and take-profit from the entry price and
// ATR: entry - 1.5*ATR and entry + 3.0*ATR, a minimum 2:1 reward:risk.
func ProtectiveLevels(entry, atr float64) (*Levels, error) {
	if entry <= 0 || atr <= 0 {
		return nil, ErrInsufficientData
	}
	return &Levels{
		StopLoss:   entry - stopLossATRMultiple*atr,
		TakeProfit: entry + takeProfitATRMultiple*atr,
	}, nil
}

// Notional sizes the order so a stop-loss hit loses about
// equity * risk_per_trade, capped at the per-order maximum. A Kelly fraction
// from rolling trade statistics scales the risk when available.
func (s *Sizer) Notional(equity, entry, atr float64) (float64, error) {
	if equity <= 0 || entry <= 0 || atr <= 0 {
		return 0, ErrInsufficientData
	}

	rf := s.riskPerTrade
	if s.kelly != nil {
		if k, ok := s.kelly.Fraction(); ok {
			rf *= clampKelly(k)
			log.Debug().
				Float64("kelly_fraction", k).
				Float64("effective_risk", rf).
				Msg("Kelly adjustment applied")
		}
	}

	stopDistance := stopLossATRMultiple * atr / entry
	notional := equity * rf / stopDistance
	if notional > s.maxNotional {
		notional = s.maxNotional
	}
	return notional, nil
}

func clampKelly(k float64) float64 {
	if k < 0 {
		return 0
	}
	if k > 0.25 {
		return 0.25
	}
	return k
}
