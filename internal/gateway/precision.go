package gateway

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountToPrecision rounds amount DOWN to the market's amount precision.
// Rounding down never produces an order larger than the balance covers.
func (g *Gateway) AmountToPrecision(ctx context.Context, symbol string, amount float64) (float64, error) {
	m, err := g.FetchMarket(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("amount precision for %s: %w", symbol, err)
	}
	return decimal.NewFromFloat(amount).
		RoundFloor(int32(m.AmountPrecision)).
		InexactFloat64(), nil
}

// PriceToPrecision rounds price to the market's nearest tick, falling back
// to decimal-place rounding when no tick size is published.
func (g *Gateway) PriceToPrecision(ctx context.Context, symbol string, price float64) (float64, error) {
	m, err := g.FetchMarket(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("price precision for %s: %w", symbol, err)
	}
	p := decimal.NewFromFloat(price)
	if m.TickSize > 0 {
		tick := decimal.NewFromFloat(m.TickSize)
		return p.Div(tick).Round(0).Mul(tick).InexactFloat64(), nil
	}
	return p.Round(int32(m.PricePrecision)).InexactFloat64(), nil
}
