package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rising(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

func TestEMAFollowsTrend(t *testing.T) {
	closes := rising(50)
	ema9, err := EMA(closes, 9)
	require.NoError(t, err)
	ema21, err := EMA(closes, 21)
	require.NoError(t, err)

	// In a steady uptrend the short EMA leads the long EMA.
	assert.Greater(t, ema9, ema21)
	assert.Less(t, ema9, closes[len(closes)-1]+1)
}

func TestEMAInsufficientData(t *testing.T) {
	_, err := EMA(rising(5), 9)
	assert.Error(t, err)
}

func TestRSIBounds(t *testing.T) {
	up, err := RSI(rising(50), 14)
	require.NoError(t, err)
	assert.Greater(t, up, 50.0)
	assert.LessOrEqual(t, up, 100.0)

	falling := make([]float64, 50)
	for i := range falling {
		falling[i] = 200 - float64(i)
	}
	down, err := RSI(falling, 14)
	require.NoError(t, err)
	assert.Less(t, down, 50.0)
	assert.GreaterOrEqual(t, down, 0.0)
}

func TestRSIInsufficientData(t *testing.T) {
	_, err := RSI(rising(14), 14)
	assert.Error(t, err)
}

func TestMACDUptrendHistogram(t *testing.T) {
	// Accelerating uptrend keeps the MACD line above its signal.
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i)*float64(i)*0.05
	}
	macdLine, signalLine, hist, err := MACD(closes)
	require.NoError(t, err)
	assert.Greater(t, macdLine, signalLine)
	assert.InDelta(t, macdLine-signalLine, hist, 1e-12)
}

func TestMACDInsufficientData(t *testing.T) {
	_, _, _, err := MACD(rising(20))
	assert.Error(t, err)
}

func TestBollingerBandsOrdering(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/3)
	}
	lower, middle, upper, err := BollingerBands(closes, 20)
	require.NoError(t, err)
	assert.Less(t, lower, middle)
	assert.Less(t, middle, upper)
}

func TestATRPositiveOnVolatileSeries(t *testing.T) {
	n := 40
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)
		highs[i] = base + 2
		lows[i] = base - 2
		closes[i] = base
	}
	atr, err := ATR(highs, lows, closes)
	require.NoError(t, err)
	assert.Greater(t, atr, 0.0)
}

func TestATRMismatchedSeries(t *testing.T) {
	_, err := ATR(rising(30), rising(29), rising(30))
	assert.Error(t, err)
}
