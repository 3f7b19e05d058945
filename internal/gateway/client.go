package gateway

import "context"

// Client is the minimum wire surface the engine consumes from the exchange.
// Any transport may back it; OKXClient is the REST implementation and
// MockExchange backs it in tests. Implementations return errors as-is: no
// retries, no fabricated values on failure.
type Client interface {
	FetchTicker(ctx context.Context, symbol string) (*Ticker, error)
	FetchTickers(ctx context.Context) ([]Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	FetchBalance(ctx context.Context) (map[string]Balance, error)
	FetchOpenOrders(ctx context.Context) ([]Order, error)
	FetchAlgoOrders(ctx context.Context, kind string) ([]AlgoOrder, error)
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CreateAlgoOrder(ctx context.Context, req AlgoOrderRequest) (*AlgoOrderResult, error)
	CancelAlgoOrder(ctx context.Context, algoID, symbol string) error
	FetchMarket(ctx context.Context, symbol string) (*Market, error)
}

// Exchange is the gateway surface the rest of the engine depends on: the
// wire operations plus discovery and precision helpers, all rate-limited
// and circuit-broken. Exactly one instance is constructed at process start
// and passed explicitly to every component that needs it.
type Exchange interface {
	Client

	// DiscoverLiquidSymbols returns the symbols quoted in the configured
	// quote currency whose 24h quote volume exceeds minQuoteVolumeUSD,
	// ordered by volume descending, capped at limit.
	DiscoverLiquidSymbols(ctx context.Context, minQuoteVolumeUSD float64, limit int) ([]string, error)

	// AmountToPrecision rounds an amount down to the market's amount
	// precision. Errors when market metadata is unavailable.
	AmountToPrecision(ctx context.Context, symbol string, amount float64) (float64, error)

	// PriceToPrecision rounds a price to the market's nearest tick.
	// Errors when market metadata is unavailable.
	PriceToPrecision(ctx context.Context, symbol string, price float64) (float64, error)
}
