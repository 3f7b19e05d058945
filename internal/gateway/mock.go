package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// MockExchange is a scripted in-memory Exchange for tests. All state is
// guarded by a mutex so tests may drive it from multiple goroutines.
type MockExchange struct {
	mu sync.Mutex

	Tickers    map[string]*Ticker
	Books      map[string]*OrderBook
	Candles    map[string][]Candle // key: symbol + "|" + timeframe
	Balances   map[string]Balance
	OpenOrders []Order
	AlgoOrders []AlgoOrder
	Markets    map[string]*Market

	// Optional hooks; when set they replace the default behavior.
	CreateOrderFn     func(ctx context.Context, req OrderRequest) (*Order, error)
	CreateAlgoOrderFn func(ctx context.Context, req AlgoOrderRequest) (*AlgoOrderResult, error)

	// Errs injects a failure per method name, e.g. Errs["FetchTicker"] = err.
	Errs map[string]error

	CreatedOrders     []OrderRequest
	CreatedAlgoOrders []AlgoOrderRequest
	CancelledAlgoIDs  []string
}

// NewMockExchange returns an empty scripted exchange.
func NewMockExchange() *MockExchange {
	return &MockExchange{
		Tickers:  make(map[string]*Ticker),
		Books:    make(map[string]*OrderBook),
		Candles:  make(map[string][]Candle),
		Balances: make(map[string]Balance),
		Markets:  make(map[string]*Market),
		Errs:     make(map[string]error),
	}
}

func candleKey(symbol, timeframe string) string { return symbol + "|" + timeframe }

// SetTicker scripts the ticker for a symbol.
func (m *MockExchange) SetTicker(t *Ticker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tickers[t.Symbol] = t
}

// SetCandles scripts the candle series for one symbol/timeframe pair.
func (m *MockExchange) SetCandles(symbol, timeframe string, candles []Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Candles[candleKey(symbol, timeframe)] = candles
}

// SetBalance scripts the balance of one asset.
func (m *MockExchange) SetBalance(asset string, b Balance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Balances[strings.ToUpper(asset)] = b
}

// SetMarket scripts the trading rules of one symbol.
func (m *MockExchange) SetMarket(market *Market) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Markets[market.Symbol] = market
}

// SetError injects an error for the named method ("" clears it).
func (m *MockExchange) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Errs, method)
		return
	}
	m.Errs[method] = err
}

func (m *MockExchange) errFor(method string) error {
	return m.Errs[method]
}

func (m *MockExchange) FetchTicker(_ context.Context, symbol string) (*Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errFor("FetchTicker"); err != nil {
		return nil, err
	}
	t, ok := m.Tickers[symbol]
	if !ok {
		return nil, fmt.Errorf("no ticker data for %s", symbol)
	}
	cp := *t
	return &cp, nil
}

func (m *MockExchange) FetchTickers(_ context.Context) ([]Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errFor("FetchTickers"); err != nil {
		return nil, err
	}
	out := make([]Ticker, 0, len(m.Tickers))
	for _, t := range m.Tickers {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *MockExchange) FetchOrderBook(_ context.Context, symbol string, _ int) (*OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errFor("FetchOrderBook"); err != nil {
		return nil, err
	}
	b, ok := m.Books[symbol]
	if !ok {
		return nil, fmt.Errorf("no order book data for %s", symbol)
	}
	return b, nil
}

func (m *MockExchange) FetchOHLCV(_ context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errFor("FetchOHLCV"); err != nil {
		return nil, err
	}
	candles, ok := m.Candles[candleKey(symbol, timeframe)]
	if !ok {
		return nil, fmt.Errorf("no candle data for %s %s", symbol, timeframe)
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	return out, nil
}

func (m *MockExchange) FetchBalance(_ context.Context) (map[string]Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errFor("FetchBalance"); err != nil {
		return nil, err
	}
	out := make(map[string]Balance, len(m.Balances))
	for k, v := range m.Balances {
		out[k] = v
	}
	return out, nil
}

func (m *MockExchange) FetchOpenOrders(_ context.Context) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errFor("FetchOpenOrders"); err != nil {
		return nil, err
	}
	out := make([]Order, len(m.OpenOrders))
	copy(out, m.OpenOrders)
	return out, nil
}

func (m *MockExchange) FetchAlgoOrders(_ context.Context, kind string) ([]AlgoOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errFor("FetchAlgoOrders"); err != nil {
		return nil, err
	}
	var out []AlgoOrder
	for _, a := range m.AlgoOrders {
		if kind == "" || a.Kind == kind {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockExchange) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	m.mu.Lock()
	if err := m.errFor("CreateOrder"); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.CreatedOrders = append(m.CreatedOrders, req)
	fn := m.CreateOrderFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &Order{
		ID:     fmt.Sprintf("mock-%d", len(m.CreatedOrders)),
		Symbol: req.Symbol,
		Side:   req.Side,
		Type:   req.Type,
		Size:   req.Size,
		Price:  req.Price,
		Status: OrderStatusFilled,
	}, nil
}

func (m *MockExchange) CreateAlgoOrder(ctx context.Context, req AlgoOrderRequest) (*AlgoOrderResult, error) {
	m.mu.Lock()
	if err := m.errFor("CreateAlgoOrder"); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.CreatedAlgoOrders = append(m.CreatedAlgoOrders, req)
	fn := m.CreateAlgoOrderFn
	n := len(m.CreatedAlgoOrders)
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &AlgoOrderResult{AlgoID: fmt.Sprintf("algo-%d", n), Code: codeOK}, nil
}

func (m *MockExchange) CancelAlgoOrder(_ context.Context, algoID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errFor("CancelAlgoOrder"); err != nil {
		return err
	}
	m.CancelledAlgoIDs = append(m.CancelledAlgoIDs, algoID)
	kept := m.AlgoOrders[:0]
	for _, a := range m.AlgoOrders {
		if a.AlgoID != algoID {
			kept = append(kept, a)
		}
	}
	m.AlgoOrders = kept
	return nil
}

func (m *MockExchange) FetchMarket(_ context.Context, symbol string) (*Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errFor("FetchMarket"); err != nil {
		return nil, err
	}
	market, ok := m.Markets[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoMarket, symbol)
	}
	return market, nil
}

func (m *MockExchange) DiscoverLiquidSymbols(ctx context.Context, minQuoteVolumeUSD float64, limit int) ([]string, error) {
	tickers, err := m.FetchTickers(ctx)
	if err != nil {
		return nil, err
	}
	type cand struct {
		symbol string
		volume float64
	}
	var cands []cand
	for _, t := range tickers {
		if t.QuoteVolume24h >= minQuoteVolumeUSD {
			cands = append(cands, cand{t.Symbol, t.QuoteVolume24h})
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].volume > cands[j].volume })
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.symbol
	}
	return out, nil
}

func (m *MockExchange) AmountToPrecision(ctx context.Context, symbol string, amount float64) (float64, error) {
	market, err := m.FetchMarket(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return decimal.NewFromFloat(amount).
		RoundFloor(int32(market.AmountPrecision)).
		InexactFloat64(), nil
}

func (m *MockExchange) PriceToPrecision(ctx context.Context, symbol string, price float64) (float64, error) {
	market, err := m.FetchMarket(ctx, symbol)
	if err != nil {
		return 0, err
	}
	p := decimal.NewFromFloat(price)
	if market.TickSize > 0 {
		tick := decimal.NewFromFloat(market.TickSize)
		return p.Div(tick).Round(0).Mul(tick).InexactFloat64(), nil
	}
	return p.Round(int32(market.PricePrecision)).InexactFloat64(), nil
}
