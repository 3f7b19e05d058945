package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/spotcycle/internal/gateway"
)

func healthyTicker() *gateway.Ticker {
	return &gateway.Ticker{
		Symbol:         "BTC/USDT",
		Last:           50000,
		Open24h:        49000,
		High24h:        51500, // 5% range: inside the comfort band
		Low24h:         49000,
		QuoteVolume24h: 1e8, // saturated volume
		Bid:            49999,
		Ask:            50001,
	}
}

func healthyBook() *gateway.OrderBook {
	book := &gateway.OrderBook{}
	for i := 0; i < 10; i++ {
		book.Bids = append(book.Bids, gateway.BookLevel{Price: 49990 - float64(i), Size: 1})
		book.Asks = append(book.Asks, gateway.BookLevel{Price: 50010 + float64(i), Size: 1})
	}
	return book
}

func TestGetSnapshotScoresHealthyMarket(t *testing.T) {
	mock := gateway.NewMockExchange()
	mock.SetTicker(healthyTicker())
	mock.Books = map[string]*gateway.OrderBook{"BTC/USDT": healthyBook()}
	p := NewProvider(mock, time.Minute)

	snap, err := p.GetSnapshot(context.Background(), "BTC/USDT")
	require.NoError(t, err)

	// Deep saturated book + saturated volume + ~0.4bps spread.
	assert.InDelta(t, 1.0, snap.Liquidity, 0.01)
	assert.Equal(t, 1.0, snap.Volatility)
}

func TestLiquidityScoreWeights(t *testing.T) {
	// Thin book and no volume: only the tight-spread term survives.
	ticker := healthyTicker()
	ticker.QuoteVolume24h = 0
	book := &gateway.OrderBook{
		Bids: []gateway.BookLevel{{Price: 49999, Size: 0.0001}},
		Asks: []gateway.BookLevel{{Price: 50001, Size: 0.0001}},
	}
	score := liquidityScore(ticker, book)
	assert.InDelta(t, 0.25, score, 0.02)
}

func TestLiquidityScoreVolumeLogScale(t *testing.T) {
	// Empty book and a spread at the cap leave only the volume term, so the
	// score is 0.30 times the log-scale volume sub-score.
	tests := []struct {
		name   string
		volume float64
		want   float64
	}{
		{"no volume", 0, 0},
		{"ten thousand", 1e4, 0.30 * 0.5},
		{"one million", 1e6, 0.30 * 0.75},
		{"saturated", 1e8, 0.30 * 1.0},
		{"beyond saturation", 1e10, 0.30 * 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticker := healthyTicker()
			ticker.QuoteVolume24h = tt.volume
			ticker.Bid = 49875 // 50bps spread: spread term zero
			ticker.Ask = 50125
			book := &gateway.OrderBook{
				Bids: []gateway.BookLevel{{Price: 49875, Size: 1e-9}},
				Asks: []gateway.BookLevel{{Price: 50125, Size: 1e-9}},
			}
			assert.InDelta(t, tt.want, liquidityScore(ticker, book), 0.001)
		})
	}
}

func TestVolatilityScoreBands(t *testing.T) {
	tests := []struct {
		name string
		high float64
		low  float64
		want float64
	}{
		{"dead market", 50050, 50000, 0.05}, // 0.1% range -> ramps from zero
		{"comfort band", 51500, 49000, 1.0}, // 5% range
		{"wild market", 57000, 49000, 0.4},  // 16% range -> falling off
		{"hard cap", 61000, 49000, 0.0},     // 24% range
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticker := healthyTicker()
			ticker.High24h = tt.high
			ticker.Low24h = tt.low
			assert.InDelta(t, tt.want, volatilityScore(ticker), 0.01)
		})
	}
}

func TestGetSnapshotRejectsInvalidData(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*gateway.Ticker, *gateway.OrderBook)
	}{
		{"zero last price", func(tk *gateway.Ticker, _ *gateway.OrderBook) { tk.Last = 0 }},
		{"crossed book", func(tk *gateway.Ticker, _ *gateway.OrderBook) { tk.Bid = 50010; tk.Ask = 50000 }},
		{"missing bid", func(tk *gateway.Ticker, _ *gateway.OrderBook) { tk.Bid = 0 }},
		{"empty asks", func(_ *gateway.Ticker, b *gateway.OrderBook) { b.Asks = nil }},
		{"negative level size", func(_ *gateway.Ticker, b *gateway.OrderBook) { b.Bids[0].Size = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticker := healthyTicker()
			book := healthyBook()
			tt.mutate(ticker, book)

			mock := gateway.NewMockExchange()
			mock.SetTicker(ticker)
			mock.Books = map[string]*gateway.OrderBook{"BTC/USDT": book}
			p := NewProvider(mock, time.Minute)

			_, err := p.GetSnapshot(context.Background(), "BTC/USDT")
			assert.Error(t, err)
		})
	}
}

func TestSnapshotCacheTTL(t *testing.T) {
	mock := gateway.NewMockExchange()
	mock.SetTicker(healthyTicker())
	mock.Books = map[string]*gateway.OrderBook{"BTC/USDT": healthyBook()}
	p := NewProvider(mock, 50*time.Millisecond)
	ctx := context.Background()

	first, err := p.GetSnapshot(ctx, "BTC/USDT")
	require.NoError(t, err)

	// Within TTL the same snapshot is served without touching the wire.
	mock.SetError("FetchTicker", assert.AnError)
	second, err := p.GetSnapshot(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Same(t, first, second)

	// After expiry the wire failure surfaces.
	time.Sleep(60 * time.Millisecond)
	_, err = p.GetSnapshot(ctx, "BTC/USDT")
	assert.Error(t, err)
}

func TestInvalidateDropsEntry(t *testing.T) {
	mock := gateway.NewMockExchange()
	mock.SetTicker(healthyTicker())
	mock.Books = map[string]*gateway.OrderBook{"BTC/USDT": healthyBook()}
	p := NewProvider(mock, time.Minute)
	ctx := context.Background()

	_, err := p.GetSnapshot(ctx, "BTC/USDT")
	require.NoError(t, err)

	p.Invalidate("BTC/USDT")
	mock.SetError("FetchTicker", assert.AnError)
	_, err = p.GetSnapshot(ctx, "BTC/USDT")
	assert.Error(t, err)
}
