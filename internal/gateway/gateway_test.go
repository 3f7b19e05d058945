package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGateway(client Client) *Gateway {
	return New(client, Config{RateLimitPerSecond: 1000, QuoteCurrency: "USDT"})
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	mock := NewMockExchange()
	mock.SetError("FetchTicker", errors.New("connection reset"))
	g := testGateway(mock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.FetchTicker(ctx, "BTC/USDT")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrCircuitOpen), "breaker must stay closed for the first 3 failures")
	}

	// Fourth call fails fast without reaching the wire.
	_, err := g.FetchTicker(ctx, "BTC/USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerRecoversAfterTimeout(t *testing.T) {
	mock := NewMockExchange()
	mock.SetError("FetchTicker", errors.New("connection reset"))
	g := New(mock, Config{
		RateLimitPerSecond: 1000,
		QuoteCurrency:      "USDT",
		BreakerTimeout:     50 * time.Millisecond,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = g.FetchTicker(ctx, "BTC/USDT")
	}
	_, err := g.FetchTicker(ctx, "BTC/USDT")
	require.ErrorIs(t, err, ErrCircuitOpen)

	// Past the timeout the breaker admits a probe; a successful probe
	// closes it again.
	mock.SetError("FetchTicker", nil)
	mock.SetTicker(&Ticker{Symbol: "BTC/USDT", Last: 50000})
	time.Sleep(60 * time.Millisecond)

	ticker, err := g.FetchTicker(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, ticker.Last)

	// Closed, not half-open: repeated calls pass through freely.
	for i := 0; i < 3; i++ {
		_, err := g.FetchTicker(ctx, "BTC/USDT")
		require.NoError(t, err)
	}
}

func TestCircuitBreakerIsolatesEndpointFamilies(t *testing.T) {
	mock := NewMockExchange()
	mock.SetError("FetchTicker", errors.New("boom"))
	mock.SetBalance("USDT", Balance{Free: 100})
	g := testGateway(mock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = g.FetchTicker(ctx, "BTC/USDT")
	}
	_, err := g.FetchTicker(ctx, "BTC/USDT")
	require.ErrorIs(t, err, ErrCircuitOpen)

	// Account endpoints keep working while market data is tripped.
	balances, err := g.FetchBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, balances["USDT"].Free)
}

func TestRateLimiterSpacesRequests(t *testing.T) {
	mock := NewMockExchange()
	mock.SetTicker(&Ticker{Symbol: "BTC/USDT", Last: 50000})
	g := New(mock, Config{RateLimitPerSecond: 50, QuoteCurrency: "USDT"})
	ctx := context.Background()

	const n = 6
	start := time.Now()
	for i := 0; i < n; i++ {
		_, err := g.FetchTicker(ctx, "BTC/USDT")
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	// 6 requests at 50/s with burst 1 need at least 5 refill intervals.
	assert.GreaterOrEqual(t, elapsed, 5*time.Duration(float64(time.Second)/50))
}

func TestDiscoverLiquidSymbols(t *testing.T) {
	mock := NewMockExchange()
	mock.SetTicker(&Ticker{Symbol: "BTC/USDT", QuoteVolume24h: 5e8})
	mock.SetTicker(&Ticker{Symbol: "ETH/USDT", QuoteVolume24h: 3e8})
	mock.SetTicker(&Ticker{Symbol: "DOGE/USDT", QuoteVolume24h: 1e7}) // below floor
	mock.SetTicker(&Ticker{Symbol: "ETH/BTC", QuoteVolume24h: 9e8})   // wrong quote
	g := testGateway(mock)

	symbols, err := g.DiscoverLiquidSymbols(context.Background(), 4e7, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, symbols)
}

func TestDiscoverLiquidSymbolsRespectsLimit(t *testing.T) {
	mock := NewMockExchange()
	mock.SetTicker(&Ticker{Symbol: "BTC/USDT", QuoteVolume24h: 5e8})
	mock.SetTicker(&Ticker{Symbol: "ETH/USDT", QuoteVolume24h: 3e8})
	mock.SetTicker(&Ticker{Symbol: "SOL/USDT", QuoteVolume24h: 2e8})
	g := testGateway(mock)

	symbols, err := g.DiscoverLiquidSymbols(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Len(t, symbols, 2)
	assert.Equal(t, "BTC/USDT", symbols[0])
}

func TestAmountToPrecisionRoundsDown(t *testing.T) {
	mock := NewMockExchange()
	mock.SetMarket(&Market{Symbol: "BTC/USDT", AmountPrecision: 4, PricePrecision: 1, TickSize: 0.1})
	g := testGateway(mock)
	ctx := context.Background()

	amount, err := g.AmountToPrecision(ctx, "BTC/USDT", 0.123456789)
	require.NoError(t, err)
	assert.Equal(t, 0.1234, amount)

	// Idempotent: a second pass leaves the value unchanged.
	again, err := g.AmountToPrecision(ctx, "BTC/USDT", amount)
	require.NoError(t, err)
	assert.Equal(t, amount, again)
}

func TestPriceToPrecisionSnapsToTick(t *testing.T) {
	mock := NewMockExchange()
	mock.SetMarket(&Market{Symbol: "BTC/USDT", AmountPrecision: 4, PricePrecision: 1, TickSize: 0.5})
	g := testGateway(mock)
	ctx := context.Background()

	price, err := g.PriceToPrecision(ctx, "BTC/USDT", 50000.37)
	require.NoError(t, err)
	assert.Equal(t, 50000.5, price)

	again, err := g.PriceToPrecision(ctx, "BTC/USDT", price)
	require.NoError(t, err)
	assert.Equal(t, price, again)
}

func TestPrecisionFailsWithoutMarketMetadata(t *testing.T) {
	mock := NewMockExchange()
	g := testGateway(mock)

	_, err := g.AmountToPrecision(context.Background(), "XYZ/USDT", 1.0)
	assert.ErrorIs(t, err, ErrNoMarket)

	_, err = g.PriceToPrecision(context.Background(), "XYZ/USDT", 1.0)
	assert.ErrorIs(t, err, ErrNoMarket)
}

func TestFetchMarketCachesMetadata(t *testing.T) {
	mock := NewMockExchange()
	mock.SetMarket(&Market{Symbol: "BTC/USDT", AmountPrecision: 4})
	g := testGateway(mock)
	ctx := context.Background()

	m1, err := g.FetchMarket(ctx, "BTC/USDT")
	require.NoError(t, err)

	// Wire failures after the first fetch do not evict the cache.
	mock.SetError("FetchMarket", errors.New("down"))
	m2, err := g.FetchMarket(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
}

func TestAPIErrorClassifiers(t *testing.T) {
	restricted := &APIError{Code: CodeSymbolRestricted, Message: "instrument restricted"}
	assert.True(t, IsRestricted(restricted))
	assert.False(t, IsInsufficientBalance(restricted))

	wrapped := errors.Join(errors.New("create order"), &APIError{Code: CodeInsufficientBalance})
	assert.True(t, IsInsufficientBalance(wrapped))

	assert.True(t, IsRateLimited(&APIError{Code: CodeRateLimited}))
	assert.False(t, IsRestricted(errors.New("plain")))
}

func TestSymbolHelpers(t *testing.T) {
	assert.Equal(t, "BTC-USDT", InstID("BTC/USDT"))
	assert.Equal(t, "BTC/USDT", SymbolFromInstID("BTC-USDT"))
	assert.Equal(t, "BTC", BaseAsset("BTC/USDT"))
	assert.Equal(t, "USDT", QuoteAsset("BTC/USDT"))
	assert.Equal(t, "SOL/USDT", MakeSymbol("sol", "usdt"))
}
