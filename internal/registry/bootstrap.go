package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/spotcycle/internal/gateway"
)

// Bootstrap rebuilds the registry at startup, in order: exchange balances,
// open orders, then surviving snapshot entries, followed by a forced
// reconciliation. The exchange is the authority; the snapshot only enriches
// what the exchange confirms.
func (r *Registry) Bootstrap(ctx context.Context, exchange gateway.Exchange) error {
	balances, err := exchange.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: balances: %w", err)
	}
	openOrders, err := exchange.FetchOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: open orders: %w", err)
	}
	algoOrders, err := exchange.FetchAlgoOrders(ctx, "oco")
	if err != nil {
		return fmt.Errorf("bootstrap: algo orders: %w", err)
	}

	loaded := make(map[string]*Position)
	now := float64(time.Now().Unix())

	// Balances first: any non-quote asset above dust with a real notional is
	// an open position, protected or not.
	for asset, bal := range balances {
		if strings.EqualFold(asset, r.quote) || bal.Free <= r.dust {
			continue
		}
		symbol := gateway.MakeSymbol(asset, r.quote)
		ticker, err := exchange.FetchTicker(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("No market for balance asset, skipping")
			continue
		}
		if bal.Free*ticker.Last < r.minPositionValue {
			continue
		}
		loaded[symbol] = &Position{
			Symbol:            symbol,
			Side:              "long",
			Amount:            bal.Free,
			EntryPrice:        ticker.Last,
			ManagedByExchange: false,
			EntryTime:         now,
		}
	}

	// Open orders next: a resting order is an on-exchange footprint even
	// when nothing has filled yet.
	for _, o := range openOrders {
		if _, ok := loaded[o.Symbol]; ok {
			continue
		}
		amount := o.Size
		if o.FilledSize > 0 {
			amount = o.FilledSize
		}
		loaded[o.Symbol] = &Position{
			Symbol:            o.Symbol,
			Side:              "long",
			Amount:            amount,
			EntryPrice:        o.Price,
			OrderID:           o.ID,
			ManagedByExchange: false,
			EntryTime:         float64(o.CreatedAt.Unix()),
		}
	}

	// Snapshot last: entries survive only with an on-exchange footprint, and
	// snapshot detail (levels, algo id, true entry price) enriches positions
	// synthesized above. The exchange's amount wins over the stored one.
	snapshot, err := r.loadSnapshot()
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	support := supportSet(balances, openOrders, algoOrders, r.quote, r.dust)
	for symbol, stored := range snapshot {
		if existing, ok := loaded[symbol]; ok {
			existing.EntryPrice = stored.EntryPrice
			existing.StopLoss = stored.StopLoss
			existing.TakeProfit = stored.TakeProfit
			existing.OrderID = stored.OrderID
			existing.ProtectionAlgoID = stored.ProtectionAlgoID
			existing.ManagedByExchange = stored.ManagedByExchange
			existing.EntryTime = stored.EntryTime
			continue
		}
		if !support[symbol] {
			log.Info().Str("symbol", symbol).Msg("Stale snapshot entry discarded")
			continue
		}
		loaded[symbol] = stored
	}

	r.mu.Lock()
	r.positions = loaded
	err = r.persistLocked()
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	log.Info().Int("positions", len(loaded)).Msg("Registry bootstrapped")

	return r.reconcile(ctx, exchange, true)
}

// supportSet builds the has_support predicate: a symbol is supported when
// its base balance exceeds dust, or it has an open order, or an algo order.
func supportSet(balances map[string]gateway.Balance, openOrders []gateway.Order, algoOrders []gateway.AlgoOrder, quote string, dust float64) map[string]bool {
	support := make(map[string]bool)
	for asset, bal := range balances {
		if strings.EqualFold(asset, quote) {
			continue
		}
		if bal.Free > dust {
			support[gateway.MakeSymbol(asset, quote)] = true
		}
	}
	for _, o := range openOrders {
		support[o.Symbol] = true
	}
	for _, a := range algoOrders {
		support[a.Symbol] = true
	}
	return support
}
