package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	okxProdURL      = "https://www.okx.com"
	okxInstTypeSpot = "SPOT"
)

// okx bar identifiers by engine timeframe.
var okxBars = map[string]string{
	"1m":  "1m",
	"5m":  "5m",
	"15m": "15m",
	"1h":  "1H",
	"4h":  "4H",
	"1d":  "1D",
}

// OKXConfig configures the REST client.
type OKXConfig struct {
	APIKey     string
	Secret     string
	Passphrase string
	Sandbox    bool
	BaseURL    string // overrides the default endpoint when set
	Timeout    time.Duration
}

// OKXClient implements Client against the OKX v5 REST API.
type OKXClient struct {
	http       *resty.Client
	apiKey     string
	secret     string
	passphrase string
	sandbox    bool
}

// NewOKXClient creates a REST client for the exchange.
func NewOKXClient(cfg OKXConfig) *OKXClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = okxProdURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	log.Info().
		Str("base_url", baseURL).
		Bool("sandbox", cfg.Sandbox).
		Dur("timeout", timeout).
		Msg("Exchange REST client initialized")

	return &OKXClient{
		http:       http,
		apiKey:     cfg.APIKey,
		secret:     cfg.Secret,
		passphrase: cfg.Passphrase,
		sandbox:    cfg.Sandbox,
	}
}

// envelope is the OKX v5 response wrapper.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// sign computes the request signature: Base64(HMAC-SHA256(ts+method+path+body)).
func (c *OKXClient) sign(ts, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(ts + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// authHeaders builds the authentication headers for a private endpoint.
func (c *OKXClient) authHeaders(method, requestPath, body string) map[string]string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	h := map[string]string{
		"OK-ACCESS-KEY":        c.apiKey,
		"OK-ACCESS-SIGN":       c.sign(ts, method, requestPath, body),
		"OK-ACCESS-TIMESTAMP":  ts,
		"OK-ACCESS-PASSPHRASE": c.passphrase,
	}
	if c.sandbox {
		h["x-simulated-trading"] = "1"
	}
	return h
}

// get performs a public or private GET and decodes the data array into out.
func (c *OKXClient) get(ctx context.Context, path string, query url.Values, private bool, out interface{}) error {
	requestPath := path
	if len(query) > 0 {
		requestPath = path + "?" + query.Encode()
	}

	req := c.http.R().SetContext(ctx)
	if private {
		req.SetHeaders(c.authHeaders("GET", requestPath, ""))
	}

	var env envelope
	resp, err := req.SetResult(&env).Get(requestPath)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode() == 429 {
		return &APIError{Code: CodeRateLimited, Message: "too many requests"}
	}
	if resp.IsError() {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode())
	}
	if env.Code != codeOK {
		return &APIError{Code: env.Code, Message: env.Msg}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("GET %s: decode data: %w", path, err)
		}
	}
	return nil
}

// post performs a private POST and decodes the data array into out.
func (c *OKXClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("POST %s: encode body: %w", path, err)
	}

	var env envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders("POST", path, string(body))).
		SetBody(body).
		SetResult(&env).
		Post(path)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	if resp.StatusCode() == 429 {
		return &APIError{Code: CodeRateLimited, Message: "too many requests"}
	}
	if resp.IsError() {
		return fmt.Errorf("POST %s: status %d", path, resp.StatusCode())
	}
	if env.Code != codeOK {
		// Order endpoints report per-item codes inside data; surface those
		// when the envelope itself does not carry a useful code.
		if itemErr := firstItemError(env.Data); itemErr != nil {
			return itemErr
		}
		return &APIError{Code: env.Code, Message: env.Msg}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("POST %s: decode data: %w", path, err)
		}
	}
	return nil
}

// firstItemError extracts the first non-zero sCode from a data array.
func firstItemError(data json.RawMessage) error {
	var items []struct {
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	for _, it := range items {
		if it.SCode != "" && it.SCode != codeOK {
			return &APIError{Code: it.SCode, Message: it.SMsg}
		}
	}
	return nil
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

type okxTicker struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	Open24h   string `json:"open24h"`
	High24h   string `json:"high24h"`
	Low24h    string `json:"low24h"`
	Vol24h    string `json:"vol24h"`
	VolCcy24h string `json:"volCcy24h"`
	BidPx     string `json:"bidPx"`
	AskPx     string `json:"askPx"`
}

func (t okxTicker) toTicker() Ticker {
	return Ticker{
		Symbol:         SymbolFromInstID(t.InstID),
		Last:           parseF(t.Last),
		Open24h:        parseF(t.Open24h),
		High24h:        parseF(t.High24h),
		Low24h:         parseF(t.Low24h),
		Volume24h:      parseF(t.Vol24h),
		QuoteVolume24h: parseF(t.VolCcy24h),
		Bid:            parseF(t.BidPx),
		Ask:            parseF(t.AskPx),
	}
}

// FetchTicker returns the 24h ticker for one symbol.
func (c *OKXClient) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	q := url.Values{"instId": {InstID(symbol)}}
	var data []okxTicker
	if err := c.get(ctx, "/api/v5/market/ticker", q, false, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no ticker data for %s", symbol)
	}
	t := data[0].toTicker()
	return &t, nil
}

// FetchTickers returns 24h tickers for all spot instruments.
func (c *OKXClient) FetchTickers(ctx context.Context) ([]Ticker, error) {
	q := url.Values{"instType": {okxInstTypeSpot}}
	var data []okxTicker
	if err := c.get(ctx, "/api/v5/market/tickers", q, false, &data); err != nil {
		return nil, err
	}
	tickers := make([]Ticker, 0, len(data))
	for _, t := range data {
		tickers = append(tickers, t.toTicker())
	}
	return tickers, nil
}

// FetchOrderBook returns the top-depth levels of the book, best first.
func (c *OKXClient) FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	q := url.Values{
		"instId": {InstID(symbol)},
		"sz":     {strconv.Itoa(depth)},
	}
	var data []struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := c.get(ctx, "/api/v5/market/books", q, false, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no order book data for %s", symbol)
	}

	book := &OrderBook{}
	for _, lvl := range data[0].Bids {
		if len(lvl) < 2 {
			return nil, fmt.Errorf("malformed bid level for %s", symbol)
		}
		book.Bids = append(book.Bids, BookLevel{Price: parseF(lvl[0]), Size: parseF(lvl[1])})
	}
	for _, lvl := range data[0].Asks {
		if len(lvl) < 2 {
			return nil, fmt.Errorf("malformed ask level for %s", symbol)
		}
		book.Asks = append(book.Asks, BookLevel{Price: parseF(lvl[0]), Size: parseF(lvl[1])})
	}
	return book, nil
}

// FetchOHLCV returns up to limit candles for the timeframe, oldest first.
func (c *OKXClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	bar, ok := okxBars[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
	q := url.Values{
		"instId": {InstID(symbol)},
		"bar":    {bar},
		"limit":  {strconv.Itoa(limit)},
	}
	var rows [][]string
	if err := c.get(ctx, "/api/v5/market/candles", q, false, &rows); err != nil {
		return nil, err
	}

	// The exchange returns newest first; reverse to chronological order.
	candles := make([]Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 6 {
			return nil, fmt.Errorf("malformed candle row for %s", symbol)
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed candle timestamp for %s: %w", symbol, err)
		}
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(ms).UTC(),
			Open:     parseF(row[1]),
			High:     parseF(row[2]),
			Low:      parseF(row[3]),
			Close:    parseF(row[4]),
			Volume:   parseF(row[5]),
		})
	}
	return candles, nil
}

// FetchBalance returns the spot balances keyed by asset.
func (c *OKXClient) FetchBalance(ctx context.Context) (map[string]Balance, error) {
	var data []struct {
		Details []struct {
			Ccy       string `json:"ccy"`
			AvailBal  string `json:"availBal"`
			FrozenBal string `json:"frozenBal"`
		} `json:"details"`
	}
	if err := c.get(ctx, "/api/v5/account/balance", nil, true, &data); err != nil {
		return nil, err
	}

	balances := make(map[string]Balance)
	for _, acct := range data {
		for _, d := range acct.Details {
			balances[strings.ToUpper(d.Ccy)] = Balance{
				Free:   parseF(d.AvailBal),
				Locked: parseF(d.FrozenBal),
			}
		}
	}
	return balances, nil
}

type okxOrder struct {
	OrdID     string `json:"ordId"`
	ClOrdID   string `json:"clOrdId"`
	InstID    string `json:"instId"`
	Side      string `json:"side"`
	OrdType   string `json:"ordType"`
	Sz        string `json:"sz"`
	Px        string `json:"px"`
	AccFillSz string `json:"accFillSz"`
	AvgPx     string `json:"avgPx"`
	State     string `json:"state"`
	CTime     string `json:"cTime"`
}

func (o okxOrder) toOrder() Order {
	status := OrderStatusOpen
	switch o.State {
	case "partially_filled":
		status = OrderStatusPartial
	case "filled":
		status = OrderStatusFilled
	case "canceled":
		status = OrderStatusCancelled
	}
	ms, _ := strconv.ParseInt(o.CTime, 10, 64)
	ordType := OrderTypeLimit
	if o.OrdType == "market" {
		ordType = OrderTypeMarket
	}
	return Order{
		ID:            o.OrdID,
		ClientOrderID: o.ClOrdID,
		Symbol:        SymbolFromInstID(o.InstID),
		Side:          Side(o.Side),
		Type:          ordType,
		Size:          parseF(o.Sz),
		Price:         parseF(o.Px),
		FilledSize:    parseF(o.AccFillSz),
		AvgPrice:      parseF(o.AvgPx),
		Status:        status,
		CreatedAt:     time.UnixMilli(ms).UTC(),
	}
}

// FetchOpenOrders returns all pending regular spot orders.
func (c *OKXClient) FetchOpenOrders(ctx context.Context) ([]Order, error) {
	q := url.Values{"instType": {okxInstTypeSpot}}
	var data []okxOrder
	if err := c.get(ctx, "/api/v5/trade/orders-pending", q, true, &data); err != nil {
		return nil, err
	}
	orders := make([]Order, 0, len(data))
	for _, o := range data {
		orders = append(orders, o.toOrder())
	}
	return orders, nil
}

// FetchAlgoOrders returns pending algo orders of the given kind ("oco").
func (c *OKXClient) FetchAlgoOrders(ctx context.Context, kind string) ([]AlgoOrder, error) {
	q := url.Values{"ordType": {kind}}
	var data []struct {
		AlgoID      string `json:"algoId"`
		InstID      string `json:"instId"`
		OrdType     string `json:"ordType"`
		Side        string `json:"side"`
		Sz          string `json:"sz"`
		TpTriggerPx string `json:"tpTriggerPx"`
		SlTriggerPx string `json:"slTriggerPx"`
	}
	if err := c.get(ctx, "/api/v5/trade/orders-algo-pending", q, true, &data); err != nil {
		return nil, err
	}
	algos := make([]AlgoOrder, 0, len(data))
	for _, a := range data {
		algos = append(algos, AlgoOrder{
			AlgoID:            a.AlgoID,
			Symbol:            SymbolFromInstID(a.InstID),
			Kind:              a.OrdType,
			Side:              Side(a.Side),
			Size:              parseF(a.Sz),
			TakeProfitTrigger: parseF(a.TpTriggerPx),
			StopLossTrigger:   parseF(a.SlTriggerPx),
		})
	}
	return algos, nil
}

// CreateOrder submits a market or limit spot order. Market buys are sized in
// base units (tgtCcy=base_ccy) so the settlement gate can compare the credited
// amount against the requested size directly.
func (c *OKXClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	payload := map[string]string{
		"instId":  InstID(req.Symbol),
		"tdMode":  "cash",
		"side":    string(req.Side),
		"ordType": string(req.Type),
		"sz":      strconv.FormatFloat(req.Size, 'f', -1, 64),
		"clOrdId": strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
	if req.Type == OrderTypeLimit {
		payload["px"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
	} else {
		payload["tgtCcy"] = "base_ccy"
	}

	var data []struct {
		OrdID string `json:"ordId"`
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
	}
	if err := c.post(ctx, "/api/v5/trade/order", payload, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty order response for %s", req.Symbol)
	}
	if data[0].SCode != codeOK {
		return nil, &APIError{Code: data[0].SCode, Message: data[0].SMsg}
	}

	log.Info().
		Str("order_id", data[0].OrdID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("type", string(req.Type)).
		Float64("size", req.Size).
		Msg("Order placed")

	return &Order{
		ID:            data[0].OrdID,
		ClientOrderID: payload["clOrdId"],
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Size:          req.Size,
		Price:         req.Price,
		Status:        OrderStatusOpen,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// CreateAlgoOrder submits an OCO protection order. The response carries the
// per-item sCode; a non-zero code is returned inside the result, not as an
// error, so the caller can apply code-specific policies.
func (c *OKXClient) CreateAlgoOrder(ctx context.Context, req AlgoOrderRequest) (*AlgoOrderResult, error) {
	payload := map[string]string{
		"instId":      InstID(req.Symbol),
		"tdMode":      "cash",
		"side":        string(req.Side),
		"ordType":     req.Kind,
		"sz":          strconv.FormatFloat(req.Size, 'f', -1, 64),
		"tpTriggerPx": strconv.FormatFloat(req.TakeProfitTrigger, 'f', -1, 64),
		"tpOrdPx":     "-1", // market take-profit
		"slTriggerPx": strconv.FormatFloat(req.StopLossTrigger, 'f', -1, 64),
		"slOrdPx":     "-1", // market stop-loss
	}

	var data []struct {
		AlgoID string `json:"algoId"`
		SCode  string `json:"sCode"`
		SMsg   string `json:"sMsg"`
	}
	if err := c.post(ctx, "/api/v5/trade/order-algo", payload, &data); err != nil {
		// Rejections surface through the result so policies stay in one place.
		var api *APIError
		if errors.As(err, &api) {
			return &AlgoOrderResult{Code: api.Code, Message: api.Message}, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty algo order response for %s", req.Symbol)
	}
	return &AlgoOrderResult{
		AlgoID:  data[0].AlgoID,
		Code:    data[0].SCode,
		Message: data[0].SMsg,
	}, nil
}

// CancelAlgoOrder cancels a pending algo order. Best-effort: callers tolerate
// failures here.
func (c *OKXClient) CancelAlgoOrder(ctx context.Context, algoID, symbol string) error {
	payload := []map[string]string{{
		"algoId": algoID,
		"instId": InstID(symbol),
	}}
	return c.post(ctx, "/api/v5/trade/cancel-algos", payload, nil)
}

// FetchMarket returns the static trading rules for one instrument.
func (c *OKXClient) FetchMarket(ctx context.Context, symbol string) (*Market, error) {
	q := url.Values{
		"instType": {okxInstTypeSpot},
		"instId":   {InstID(symbol)},
	}
	var data []struct {
		InstID   string `json:"instId"`
		TickSz   string `json:"tickSz"`
		LotSz    string `json:"lotSz"`
		MinSz    string `json:"minSz"`
	}
	if err := c.get(ctx, "/api/v5/public/instruments", q, false, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMarket, symbol)
	}

	tickSz := parseF(data[0].TickSz)
	minSz := parseF(data[0].MinSz)
	return &Market{
		Symbol:          symbol,
		TickSize:        tickSz,
		AmountPrecision: decimalsOf(data[0].LotSz),
		PricePrecision:  decimalsOf(data[0].TickSz),
		MinAmount:       minSz,
		MinNotional:     0, // spot markets express minimums in base units
	}, nil
}

// decimalsOf counts the decimal places of a step size like "0.0001".
func decimalsOf(step string) int {
	if i := strings.IndexByte(step, '.'); i >= 0 {
		return len(strings.TrimRight(step[i+1:], "0"))
	}
	return 0
}
