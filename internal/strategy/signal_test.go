package strategy

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/spotcycle/internal/gateway"
)

func series(n int, slope float64) []gateway.Candle {
	out := make([]gateway.Candle, n)
	for i := range out {
		base := 100 + slope*float64(i)
		wiggle := math.Sin(float64(i)/2) * 0.3
		out[i] = gateway.Candle{
			OpenTime: time.Now().Add(time.Duration(i-n) * 15 * time.Minute),
			Open:     base - 0.1 + wiggle,
			High:     base + 0.6 + wiggle,
			Low:      base - 0.6 + wiggle,
			Close:    base + 0.1 + wiggle,
			Volume:   5,
		}
	}
	return out
}

func TestEvaluateUptrendBuys(t *testing.T) {
	mock := gateway.NewMockExchange()
	mock.SetCandles("BTC/USDT", "15m", series(200, 0.4))
	e := NewEvaluator(mock, 200)

	sig, err := e.Evaluate(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, DecisionBuy, sig.Decision)
	assert.GreaterOrEqual(t, sig.Confidence, 0.45)
	assert.LessOrEqual(t, sig.Confidence, 1.0)
}

func TestEvaluateDowntrendSells(t *testing.T) {
	mock := gateway.NewMockExchange()
	mock.SetCandles("BTC/USDT", "15m", series(200, -0.4))
	e := NewEvaluator(mock, 200)

	sig, err := e.Evaluate(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, DecisionSell, sig.Decision)
}

func TestEvaluateFlatMarketHolds(t *testing.T) {
	// Alternating ticks around a fixed price: no trend in any indicator.
	flat := make([]gateway.Candle, 200)
	for i := range flat {
		px := 100.0
		if i%2 == 1 {
			px = 100.05
		}
		flat[i] = gateway.Candle{
			OpenTime: time.Now().Add(time.Duration(i-200) * 15 * time.Minute),
			Open:     100, High: 100.3, Low: 99.7, Close: px, Volume: 5,
		}
	}
	mock := gateway.NewMockExchange()
	mock.SetCandles("BTC/USDT", "15m", flat)
	e := NewEvaluator(mock, 200)

	sig, err := e.Evaluate(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, DecisionHold, sig.Decision)
	assert.Equal(t, 0.0, sig.Confidence)
}

func TestEvaluateInsufficientHistory(t *testing.T) {
	mock := gateway.NewMockExchange()
	mock.SetCandles("BTC/USDT", "15m", series(50, 0.4))
	e := NewEvaluator(mock, 200)

	_, err := e.Evaluate(context.Background(), "BTC/USDT")
	assert.Error(t, err)
}

func TestEvaluateMissingData(t *testing.T) {
	mock := gateway.NewMockExchange()
	e := NewEvaluator(mock, 200)

	_, err := e.Evaluate(context.Background(), "XYZ/USDT")
	assert.Error(t, err)
}
