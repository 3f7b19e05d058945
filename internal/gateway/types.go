package gateway

import (
	"fmt"
	"strings"
	"time"
)

// Side is the order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the order execution type.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of a regular order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partially_filled"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Ticker is the 24h rolling window statistics for a symbol.
type Ticker struct {
	Symbol         string
	Last           float64
	Open24h        float64
	High24h        float64
	Low24h         float64
	Volume24h      float64 // base units
	QuoteVolume24h float64 // quote (USD) units
	Bid            float64
	Ask            float64
}

// Change24h returns the 24h fractional return, or 0 when the open is unknown.
func (t *Ticker) Change24h() float64 {
	if t.Open24h <= 0 {
		return 0
	}
	return (t.Last - t.Open24h) / t.Open24h
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook holds the top-K levels of both sides, best first.
type OrderBook struct {
	Bids []BookLevel
	Asks []BookLevel
}

// Candle is a single OHLCV bar.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Balance is the spot balance of a single asset.
type Balance struct {
	Free   float64
	Locked float64
}

// Total returns free plus locked.
func (b Balance) Total() float64 { return b.Free + b.Locked }

// Order is a regular (non-algo) exchange order.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Size          float64
	Price         float64
	FilledSize    float64
	AvgPrice      float64
	Status        OrderStatus
	CreatedAt     time.Time
}

// OrderRequest is the input to CreateOrder.
type OrderRequest struct {
	Symbol string
	Side   Side
	Type   OrderType
	Size   float64
	Price  float64 // limit orders only
}

// AlgoOrder is an exchange-side conditional order (OCO stop-loss/take-profit).
// Algo orders live in a separate book and are queried via a dedicated endpoint.
type AlgoOrder struct {
	AlgoID            string
	Symbol            string
	Kind              string // "oco"
	Side              Side
	Size              float64
	TakeProfitTrigger float64
	StopLossTrigger   float64
}

// AlgoOrderRequest is the input to CreateAlgoOrder.
type AlgoOrderRequest struct {
	Symbol            string
	Size              float64
	TakeProfitTrigger float64
	StopLossTrigger   float64
	Side              Side   // always "sell" for long protection
	Kind              string // "oco"
}

// AlgoOrderResult carries the exchange acknowledgement of an algo order.
// Code "0" means accepted; anything else is a rejection with Message set.
type AlgoOrderResult struct {
	AlgoID  string
	Code    string
	Message string
}

// OK reports whether the algo order was accepted.
func (r *AlgoOrderResult) OK() bool { return r.Code == codeOK }

// Market holds static per-market trading rules.
type Market struct {
	Symbol          string
	TickSize        float64
	AmountPrecision int
	PricePrecision  int
	MinAmount       float64
	MinNotional     float64
}

// InstID converts "BTC/USDT" to the exchange instrument id "BTC-USDT".
func InstID(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "-")
}

// SymbolFromInstID converts "BTC-USDT" back to "BTC/USDT".
func SymbolFromInstID(instID string) string {
	return strings.ToUpper(strings.ReplaceAll(instID, "-", "/"))
}

// BaseAsset returns the base currency of a "BASE/QUOTE" symbol.
func BaseAsset(symbol string) string {
	if i := strings.IndexByte(symbol, '/'); i >= 0 {
		return symbol[:i]
	}
	return symbol
}

// QuoteAsset returns the quote currency of a "BASE/QUOTE" symbol.
func QuoteAsset(symbol string) string {
	if i := strings.IndexByte(symbol, '/'); i >= 0 {
		return symbol[i+1:]
	}
	return ""
}

// MakeSymbol builds the canonical uppercase "BASE/QUOTE" form.
func MakeSymbol(base, quote string) string {
	return fmt.Sprintf("%s/%s", strings.ToUpper(base), strings.ToUpper(quote))
}
