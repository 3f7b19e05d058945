// Package executor drives order placement: sizing, the market buy, the
// settlement gate, and exchange-side OCO protection. Protection is only ever
// placed against a balance the exchange has confirmed credited.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/spotcycle/internal/gateway"
	"github.com/ajitpratap0/spotcycle/internal/metrics"
	"github.com/ajitpratap0/spotcycle/internal/registry"
	"github.com/ajitpratap0/spotcycle/internal/restricted"
	"github.com/ajitpratap0/spotcycle/internal/risk"
)

// ErrDuplicateBuy aborts a buy when the symbol already has a position or a
// resting order.
var ErrDuplicateBuy = errors.New("DUPLICATE_BUY_PREVENTED")

const (
	settleBackoffStart = 200 * time.Millisecond
	settleBackoffMax   = time.Second
	settledFraction    = 0.99 // credited amount accepted net of fees
)

// Config holds the executor's tunables.
type Config struct {
	QuoteCurrency string
	SettleTimeout time.Duration
}

// Executor executes buys and sells against the gateway and keeps the
// registry in sync.
type Executor struct {
	exchange   gateway.Exchange
	registry   *registry.Registry
	sizer      *risk.Sizer
	restricted *restricted.Set
	kelly      *risk.KellyTracker

	quote         string
	settleTimeout time.Duration
}

// New creates an executor. kelly may be nil.
func New(exchange gateway.Exchange, reg *registry.Registry, sizer *risk.Sizer, restrictedSet *restricted.Set, kelly *risk.KellyTracker, cfg Config) *Executor {
	if cfg.QuoteCurrency == "" {
		cfg.QuoteCurrency = "USDT"
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 5 * time.Second
	}
	return &Executor{
		exchange:      exchange,
		registry:      reg,
		sizer:         sizer,
		restricted:    restrictedSet,
		kelly:         kelly,
		quote:         cfg.QuoteCurrency,
		settleTimeout: cfg.SettleTimeout,
	}
}

// ExecuteBuy runs the full buy state machine for symbol: duplicate check,
// sizing, market buy, settlement gate, OCO protection, registry insert.
// Sizing failures abort before any order is placed.
func (e *Executor) ExecuteBuy(ctx context.Context, symbol string) error {
	if e.registry.Has(symbol) {
		return fmt.Errorf("%s: %w", symbol, ErrDuplicateBuy)
	}
	openOrders, err := e.exchange.FetchOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("buy %s: open orders: %w", symbol, err)
	}
	for _, o := range openOrders {
		if o.Symbol == symbol {
			return fmt.Errorf("%s: %w", symbol, ErrDuplicateBuy)
		}
	}

	// SIZING
	ticker, err := e.exchange.FetchTicker(ctx, symbol)
	if err != nil {
		return fmt.Errorf("buy %s: ticker: %w", symbol, err)
	}
	entry := ticker.Last

	atr, err := e.sizer.ATR15(ctx, symbol)
	if err != nil {
		return fmt.Errorf("buy %s: %w", symbol, err)
	}
	levels, err := risk.ProtectiveLevels(entry, atr)
	if err != nil {
		return fmt.Errorf("buy %s: %w", symbol, err)
	}
	stopLoss, err := e.exchange.PriceToPrecision(ctx, symbol, levels.StopLoss)
	if err != nil {
		return fmt.Errorf("buy %s: %w", symbol, err)
	}
	takeProfit, err := e.exchange.PriceToPrecision(ctx, symbol, levels.TakeProfit)
	if err != nil {
		return fmt.Errorf("buy %s: %w", symbol, err)
	}

	balances, err := e.exchange.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("buy %s: balance: %w", symbol, err)
	}
	equity := balances[e.quote].Free

	notional, err := e.sizer.Notional(equity, entry, atr)
	if err != nil {
		return fmt.Errorf("buy %s: %w", symbol, err)
	}
	size, err := e.exchange.AmountToPrecision(ctx, symbol, notional/entry)
	if err != nil {
		return fmt.Errorf("buy %s: %w", symbol, err)
	}
	market, err := e.exchange.FetchMarket(ctx, symbol)
	if err != nil {
		return fmt.Errorf("buy %s: %w", symbol, err)
	}
	if size < market.MinAmount || size*entry < market.MinNotional {
		return fmt.Errorf("buy %s: size %f below market minimum", symbol, size)
	}

	base := gateway.BaseAsset(symbol)
	baseline := balances[base].Free

	// SUBMITTING
	order, err := e.exchange.CreateOrder(ctx, gateway.OrderRequest{
		Symbol: symbol,
		Side:   gateway.SideBuy,
		Type:   gateway.OrderTypeMarket,
		Size:   size,
	})
	if err != nil {
		metrics.IncOrder("buy", "error")
		if gateway.IsRestricted(err) {
			if addErr := e.restricted.Add(symbol); addErr != nil {
				log.Error().Err(addErr).Str("symbol", symbol).Msg("Failed to persist restricted symbol")
			}
		}
		return fmt.Errorf("buy %s: %w", symbol, err)
	}
	metrics.IncOrder("buy", "ok")

	expected := size
	if order.FilledSize > 0 {
		expected = order.FilledSize
	}

	// SETTLING
	credited, settled := e.waitForSettlement(ctx, base, baseline, expected)

	pos := registry.Position{
		Symbol:     symbol,
		Side:       "long",
		Amount:     credited,
		EntryPrice: entry,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		OrderID:    order.ID,
		EntryTime:  float64(time.Now().Unix()),
	}

	if !settled {
		// The order exists even though the credit never showed; record the
		// position unprotected and let the scheduler retry.
		log.Warn().
			Str("symbol", symbol).
			Float64("expected", expected).
			Float64("credited", credited).
			Msg("Settlement timeout, deferring protection")
		if credited <= 0 {
			pos.Amount = expected
		}
		pos.ManagedByExchange = false
		return e.registry.Insert(pos)
	}

	// PROTECTING
	algoID, protErr := e.placeOCO(ctx, symbol, credited, takeProfit, stopLoss)
	if protErr != nil {
		log.Warn().Err(protErr).Str("symbol", symbol).Msg("Protection failed, deferring to scheduler")
		pos.ManagedByExchange = false
	} else {
		pos.ProtectionAlgoID = &algoID
		pos.ManagedByExchange = true
	}

	// COMMIT
	return e.registry.Insert(pos)
}

// waitForSettlement polls the balance until the credited amount covers the
// expected fill, with exponential backoff bounded by the settle timeout.
// Returns the credited amount and whether the gate passed.
func (e *Executor) waitForSettlement(ctx context.Context, base string, baseline, expected float64) (float64, bool) {
	deadline := time.Now().Add(e.settleTimeout)
	backoff := settleBackoffStart
	var credited float64

	for {
		balances, err := e.exchange.FetchBalance(ctx)
		if err == nil {
			credited = balances[base].Free - baseline
			if credited >= settledFraction*expected {
				return credited, true
			}
		} else {
			log.Warn().Err(err).Str("asset", base).Msg("Balance poll failed during settlement")
		}

		if time.Now().Add(backoff).After(deadline) {
			return credited, false
		}
		select {
		case <-ctx.Done():
			return credited, false
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > settleBackoffMax {
			backoff = settleBackoffMax
		}
	}
}

// placeOCO submits the protective OCO sell. A restricted-symbol rejection
// also marks the symbol restricted. Returns the algo id on success.
func (e *Executor) placeOCO(ctx context.Context, symbol string, amount, takeProfit, stopLoss float64) (string, error) {
	size, err := e.exchange.AmountToPrecision(ctx, symbol, amount)
	if err != nil {
		return "", err
	}
	result, err := e.exchange.CreateAlgoOrder(ctx, gateway.AlgoOrderRequest{
		Symbol:            symbol,
		Size:              size,
		TakeProfitTrigger: takeProfit,
		StopLossTrigger:   stopLoss,
		Side:              gateway.SideSell,
		Kind:              "oco",
	})
	if err != nil {
		return "", err
	}
	if !result.OK() {
		if result.Code == gateway.CodeSymbolRestricted {
			if addErr := e.restricted.Add(symbol); addErr != nil {
				log.Error().Err(addErr).Str("symbol", symbol).Msg("Failed to persist restricted symbol")
			}
		}
		return "", &gateway.APIError{Code: result.Code, Message: result.Message}
	}

	log.Info().
		Str("symbol", symbol).
		Str("algo_id", result.AlgoID).
		Float64("take_profit", takeProfit).
		Float64("stop_loss", stopLoss).
		Msg("Protection placed")

	return result.AlgoID, nil
}

// RetryProtection attempts to place the OCO for an unprotected position and
// updates the registry on success.
func (e *Executor) RetryProtection(ctx context.Context, symbol string) error {
	pos, ok := e.registry.Get(symbol)
	if !ok || pos.ManagedByExchange {
		return nil
	}
	if pos.StopLoss <= 0 || pos.TakeProfit <= 0 {
		return fmt.Errorf("protection %s: no stored levels", symbol)
	}

	algoID, err := e.placeOCO(ctx, symbol, pos.Amount, pos.TakeProfit, pos.StopLoss)
	if err != nil {
		return fmt.Errorf("protection %s: %w", symbol, err)
	}
	return e.registry.Update(symbol, func(p *registry.Position) {
		p.ProtectionAlgoID = &algoID
		p.ManagedByExchange = true
	})
}

// ExecuteSell closes the position for symbol: best-effort OCO cancel, market
// sell, realized PnL bookkeeping, registry delete.
func (e *Executor) ExecuteSell(ctx context.Context, symbol string) error {
	pos, ok := e.registry.Get(symbol)
	if !ok {
		return fmt.Errorf("sell %s: no open position", symbol)
	}

	if pos.ProtectionAlgoID != nil {
		if err := e.exchange.CancelAlgoOrder(ctx, *pos.ProtectionAlgoID, symbol); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("OCO cancel failed, selling anyway")
		}
	}

	size, err := e.exchange.AmountToPrecision(ctx, symbol, pos.Amount)
	if err != nil {
		return fmt.Errorf("sell %s: %w", symbol, err)
	}
	order, err := e.exchange.CreateOrder(ctx, gateway.OrderRequest{
		Symbol: symbol,
		Side:   gateway.SideSell,
		Type:   gateway.OrderTypeMarket,
		Size:   size,
	})
	if err != nil {
		metrics.IncOrder("sell", "error")
		return fmt.Errorf("sell %s: %w", symbol, err)
	}
	metrics.IncOrder("sell", "ok")

	exitPrice := order.AvgPrice
	if exitPrice <= 0 {
		if ticker, tErr := e.exchange.FetchTicker(ctx, symbol); tErr == nil {
			exitPrice = ticker.Last
		}
	}
	if e.kelly != nil && exitPrice > 0 && pos.EntryPrice > 0 {
		e.kelly.RecordTrade((exitPrice - pos.EntryPrice) * pos.Amount)
	}

	log.Info().
		Str("symbol", symbol).
		Float64("amount", pos.Amount).
		Float64("entry_price", pos.EntryPrice).
		Float64("exit_price", exitPrice).
		Msg("Position sold")

	return e.registry.Delete(symbol)
}
