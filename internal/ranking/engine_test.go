package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/spotcycle/internal/gateway"
	"github.com/ajitpratap0/spotcycle/internal/marketdata"
)

func TestWeightRowsSumToOne(t *testing.T) {
	for regime, w := range weights {
		assert.InDelta(t, 1.0, w.sum(), 1e-9, "regime %s", regime)
	}
}

func scriptSymbol(mock *gateway.MockExchange, symbol string, changePct float64) {
	last := 100.0
	open := last / (1 + changePct/100)
	mock.SetTicker(&gateway.Ticker{
		Symbol:         symbol,
		Last:           last,
		Open24h:        open,
		High24h:        last * 1.04,
		Low24h:         last * 0.99,
		QuoteVolume24h: 8e7,
		Bid:            last - 0.01,
		Ask:            last + 0.01,
	})
	mock.Books[symbol] = &gateway.OrderBook{
		Bids: []gateway.BookLevel{{Price: last - 0.01, Size: 1000}},
		Asks: []gateway.BookLevel{{Price: last + 0.01, Size: 1000}},
	}
	candles := make([]gateway.Candle, 20)
	for i := range candles {
		candles[i] = gateway.Candle{
			OpenTime: time.Now().Add(time.Duration(i-20) * 15 * time.Minute),
			Open:     last - 1,
			High:     last + 1,
			Low:      last - 2,
			Close:    last,
			Volume:   10,
		}
	}
	mock.SetCandles(symbol, "15m", candles)
}

func newTestEngine(mock *gateway.MockExchange) *Engine {
	provider := marketdata.NewProvider(mock, time.Minute)
	return NewEngine(mock, provider, nil, nil)
}

func TestDetectRegime(t *testing.T) {
	tests := []struct {
		name      string
		changePct float64
		want      Regime
	}{
		{"strong move is trending", 7, RegimeTrending},
		{"strong down move is trending", -7, RegimeTrending},
		{"moderate move is volatile", 3, RegimeVolatile},
		{"quiet market is ranging", 0.5, RegimeRanging},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := gateway.NewMockExchange()
			for _, b := range bellwethers {
				scriptSymbol(mock, b, tt.changePct)
			}
			e := newTestEngine(mock)
			assert.Equal(t, tt.want, e.DetectRegime(context.Background()))
		})
	}
}

func TestDetectRegimeNoDataIsNeutral(t *testing.T) {
	mock := gateway.NewMockExchange()
	e := newTestEngine(mock)
	assert.Equal(t, RegimeNeutral, e.DetectRegime(context.Background()))
}

func TestRankSortsByTotalDescending(t *testing.T) {
	mock := gateway.NewMockExchange()
	scriptSymbol(mock, "BTC/USDT", 6) // strong momentum
	scriptSymbol(mock, "ETH/USDT", -4)
	e := newTestEngine(mock)

	scores := e.Rank(context.Background(), []string{"ETH/USDT", "BTC/USDT"}, RegimeTrending)
	require.Len(t, scores, 2)
	assert.Equal(t, "BTC/USDT", scores[0].Symbol)
	assert.GreaterOrEqual(t, scores[0].Total, scores[1].Total)
}

func TestRankDropsUnknownAssetClass(t *testing.T) {
	mock := gateway.NewMockExchange()
	scriptSymbol(mock, "BTC/USDT", 2)
	scriptSymbol(mock, "OBSCURE/USDT", 2)
	e := newTestEngine(mock)

	scores := e.Rank(context.Background(), []string{"BTC/USDT", "OBSCURE/USDT"}, RegimeNeutral)
	require.Len(t, scores, 1)
	assert.Equal(t, "BTC/USDT", scores[0].Symbol)
}

func TestRankExtendedAssetClassFromConfig(t *testing.T) {
	mock := gateway.NewMockExchange()
	scriptSymbol(mock, "OBSCURE/USDT", 2)
	provider := marketdata.NewProvider(mock, time.Minute)
	e := NewEngine(mock, provider, nil, map[string]float64{"OBSCURE": 0.7})

	scores := e.Rank(context.Background(), []string{"OBSCURE/USDT"}, RegimeNeutral)
	require.Len(t, scores, 1)
}

func TestRankDropsSymbolOnSnapshotError(t *testing.T) {
	mock := gateway.NewMockExchange()
	scriptSymbol(mock, "BTC/USDT", 2)
	e := newTestEngine(mock)

	// No ticker scripted for SOL/USDT; it must be skipped, not defaulted.
	scores := e.Rank(context.Background(), []string{"BTC/USDT", "SOL/USDT"}, RegimeNeutral)
	require.Len(t, scores, 1)
	assert.Equal(t, "BTC/USDT", scores[0].Symbol)
}

func TestScoresAreBounded(t *testing.T) {
	mock := gateway.NewMockExchange()
	scriptSymbol(mock, "DOGE/USDT", 14) // extreme move, meme class risk
	e := newTestEngine(mock)

	scores := e.Rank(context.Background(), []string{"DOGE/USDT"}, RegimeTrending)
	require.Len(t, scores, 1)
	s := scores[0]
	for name, v := range map[string]float64{
		"liquidity": s.Liquidity, "momentum": s.Momentum, "macro": s.Macro,
		"onchain": s.Onchain, "volatility": s.Volatility, "trend": s.Trend,
		"risk": s.Risk, "total": s.Total,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
}

func TestMacroScoreShiftsWithMomentum(t *testing.T) {
	e := &Engine{sentiment: map[string]float64{"BTC": 0.5}}

	up := e.macroScore("BTC", 0.20) // saturated positive shift
	assert.InDelta(t, 0.65, up, 1e-9)

	down := e.macroScore("BTC", -0.20)
	assert.InDelta(t, 0.35, down, 1e-9)

	missing := e.macroScore("XYZ", 0.0)
	assert.InDelta(t, 0.5, missing, 1e-9)
}

func TestMomentumScore(t *testing.T) {
	// Flat market on saturated volume sits at 0.65.
	assert.InDelta(t, 0.65, momentumScore(0, 1e8), 1e-9)
	// Clamped extreme move stays within bounds.
	assert.LessOrEqual(t, momentumScore(0.5, 1e9), 1.0)
	assert.GreaterOrEqual(t, momentumScore(-0.5, 0), 0.0)
}
