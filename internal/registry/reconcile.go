package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/spotcycle/internal/gateway"
	"github.com/ajitpratap0/spotcycle/internal/metrics"
)

// partialCloseTolerance absorbs exchange fees taken in the base asset.
const partialCloseTolerance = 0.99

// Reconcile prunes positions the exchange no longer supports. Invocations
// within the reconcile interval return immediately; callers may invoke it
// every cycle without budgeting for the cost.
func (r *Registry) Reconcile(ctx context.Context, exchange gateway.Exchange) error {
	return r.reconcile(ctx, exchange, false)
}

func (r *Registry) reconcile(ctx context.Context, exchange gateway.Exchange, force bool) error {
	r.mu.Lock()
	if !force && time.Since(r.lastReconcile) < r.reconcileInterval {
		r.mu.Unlock()
		return nil
	}
	r.lastReconcile = time.Now()
	r.mu.Unlock()

	// Exchange state is fetched before taking the lock; the mutex is never
	// held across network I/O.
	balances, err := exchange.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: balances: %w", err)
	}
	openOrders, err := exchange.FetchOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: open orders: %w", err)
	}
	algoOrders, err := exchange.FetchAlgoOrders(ctx, "oco")
	if err != nil {
		return fmt.Errorf("reconcile: algo orders: %w", err)
	}

	support := supportSet(balances, openOrders, algoOrders, r.quote, r.dust)
	hasAlgo := make(map[string]bool, len(algoOrders))
	for _, a := range algoOrders {
		hasAlgo[a.Symbol] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for symbol, p := range r.positions {
		if !support[symbol] {
			removed = append(removed, symbol)
			delete(r.positions, symbol)
			continue
		}
		// Partial-close detection on the free balance. Skipped when an OCO
		// holds the base asset: the exchange moves the protected amount to
		// locked, which would otherwise read as a partial close.
		if hasAlgo[symbol] {
			continue
		}
		free := balances[gateway.BaseAsset(symbol)].Free
		if free < partialCloseTolerance*p.Amount {
			removed = append(removed, symbol)
			delete(r.positions, symbol)
		}
	}

	if len(removed) > 0 {
		for _, symbol := range removed {
			log.Info().Str("symbol", symbol).Msg("Position removed by reconciliation")
			metrics.IncReconcileRemoved()
		}
		metrics.SetOpenPositions(len(r.positions))
	}
	if err := r.persistLocked(); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	log.Debug().
		Int("removed", len(removed)).
		Int("remaining", len(r.positions)).
		Msg("Reconciliation complete")

	return nil
}
