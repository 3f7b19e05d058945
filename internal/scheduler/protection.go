package scheduler

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/spotcycle/internal/registry"
)

// enforceProtection covers positions whose OCO never made it onto the
// exchange: a stored level breached by the current price is sold at market;
// otherwise protection placement is retried. Exchange-managed positions are
// untouched.
func (s *Scheduler) enforceProtection(ctx context.Context) error {
	for _, pos := range s.registry.Positions() {
		if pos.ManagedByExchange {
			continue
		}

		ticker, err := s.exchange.FetchTicker(ctx, pos.Symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("No price for manual protection check")
			continue
		}
		price := ticker.Last

		breached := (pos.StopLoss > 0 && price <= pos.StopLoss) ||
			(pos.TakeProfit > 0 && price >= pos.TakeProfit)
		if breached {
			log.Warn().
				Str("symbol", pos.Symbol).
				Float64("price", price).
				Float64("stop_loss", pos.StopLoss).
				Float64("take_profit", pos.TakeProfit).
				Msg("Manual protection triggered, selling")
			if err := s.exec.ExecuteSell(ctx, pos.Symbol); err != nil {
				if errors.Is(err, registry.ErrInvariant) {
					return err
				}
				log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Manual protection sell failed")
			}
			continue
		}

		if err := s.exec.RetryProtection(ctx, pos.Symbol); err != nil {
			if errors.Is(err, registry.ErrInvariant) {
				return err
			}
			log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Protection retry failed, will retry next cycle")
		}
	}
	return nil
}
