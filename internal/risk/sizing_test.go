package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/spotcycle/internal/gateway"
)

func TestProtectiveLevels(t *testing.T) {
	levels, err := ProtectiveLevels(50000, 100)
	require.NoError(t, err)
	assert.Equal(t, 49850.0, levels.StopLoss)
	assert.Equal(t, 50300.0, levels.TakeProfit)

	// Reward:risk is at least 2:1.
	reward := levels.TakeProfit - 50000
	riskAmt := 50000 - levels.StopLoss
	assert.GreaterOrEqual(t, reward/riskAmt, 2.0)
}

func TestProtectiveLevelsRejectBadInputs(t *testing.T) {
	_, err := ProtectiveLevels(0, 100)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = ProtectiveLevels(50000, 0)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestNotionalRiskBudget(t *testing.T) {
	s := NewSizer(gateway.NewMockExchange(), 0.01, 1e9, nil)

	// equity 10_000, entry 50_000, ATR 100: stop distance 0.3%,
	// notional = 10_000 * 0.01 / 0.003.
	notional, err := s.Notional(10000, 50000, 100)
	require.NoError(t, err)
	assert.InDelta(t, 10000*0.01/(1.5*100/50000), notional, 1e-6)

	// A stop-loss hit on that notional loses the risk budget.
	loss := notional * (1.5 * 100 / 50000)
	assert.InDelta(t, 100, loss, 1e-6)
}

func TestNotionalCappedByMaxOrder(t *testing.T) {
	s := NewSizer(gateway.NewMockExchange(), 0.01, 500, nil)
	notional, err := s.Notional(10000, 50000, 100)
	require.NoError(t, err)
	assert.Equal(t, 500.0, notional)
}

func TestNotionalRejectsMissingInputs(t *testing.T) {
	s := NewSizer(gateway.NewMockExchange(), 0.01, 1000, nil)
	_, err := s.Notional(0, 50000, 100)
	assert.ErrorIs(t, err, ErrInsufficientData)
	_, err = s.Notional(10000, 50000, 0)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestATR15RequiresData(t *testing.T) {
	mock := gateway.NewMockExchange()
	s := NewSizer(mock, 0.01, 1000, nil)
	_, err := s.ATR15(context.Background(), "BTC/USDT")
	assert.Error(t, err)
}

func TestATR15FromCandles(t *testing.T) {
	mock := gateway.NewMockExchange()
	candles := make([]gateway.Candle, 50)
	for i := range candles {
		base := 50000 + float64(i)*10
		candles[i] = gateway.Candle{
			OpenTime: time.Now().Add(time.Duration(i-50) * 15 * time.Minute),
			Open:     base,
			High:     base + 60,
			Low:      base - 60,
			Close:    base + 10,
		}
	}
	mock.SetCandles("BTC/USDT", "15m", candles)
	s := NewSizer(mock, 0.01, 1000, nil)

	atr, err := s.ATR15(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Greater(t, atr, 0.0)
}

func TestKellyTrackerNeedsSamples(t *testing.T) {
	k := NewKellyTracker()
	for i := 0; i < 5; i++ {
		k.RecordTrade(10)
		k.RecordTrade(-5)
	}
	// 10 trades: now reportable.
	frac, ok := k.Fraction()
	require.True(t, ok)

	// W=0.5, R=2: 0.5 - 0.5/2 = 0.25.
	assert.InDelta(t, 0.25, frac, 1e-9)
}

func TestKellyTrackerBelowThreshold(t *testing.T) {
	k := NewKellyTracker()
	k.RecordTrade(10)
	k.RecordTrade(-5)
	_, ok := k.Fraction()
	assert.False(t, ok)
}

func TestKellyAdjustmentScalesRisk(t *testing.T) {
	k := NewKellyTracker()
	for i := 0; i < 5; i++ {
		k.RecordTrade(10)
		k.RecordTrade(-5)
	}
	with := NewSizer(gateway.NewMockExchange(), 0.01, 1e9, k)
	without := NewSizer(gateway.NewMockExchange(), 0.01, 1e9, nil)

	nWith, err := with.Notional(10000, 50000, 100)
	require.NoError(t, err)
	nWithout, err := without.Notional(10000, 50000, 100)
	require.NoError(t, err)

	// Kelly fraction 0.25 scales the risk budget to a quarter.
	assert.InDelta(t, nWithout*0.25, nWith, 1e-6)
}

func TestKellyNegativeFractionZeroesRisk(t *testing.T) {
	k := NewKellyTracker()
	for i := 0; i < 3; i++ {
		k.RecordTrade(5)
	}
	for i := 0; i < 7; i++ {
		k.RecordTrade(-10)
	}
	frac, ok := k.Fraction()
	require.True(t, ok)
	assert.Less(t, frac, 0.0)

	s := NewSizer(gateway.NewMockExchange(), 0.01, 1e9, k)
	notional, err := s.Notional(10000, 50000, 100)
	require.NoError(t, err)
	assert.Equal(t, 0.0, notional)
}
