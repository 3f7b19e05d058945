// Package macro models the broad-market context fed into decision making.
package macro

import "context"

// Phase is the coarse market cycle label.
type Phase string

const (
	PhaseExpansion   Phase = "expansion"
	PhaseContraction Phase = "contraction"
	PhaseUnknown     Phase = "unknown"
)

// Context is the macro view consumed by the decision engine. Sentiment maps
// base assets to [0,1] scores and feeds the ranking engine.
type Context struct {
	Phase               Phase
	Sentiment           map[string]float64
	RiskLevel           float64 // [0,1], 1 = maximum caution
	RecommendedExposure float64 // [0,1] fraction of equity to deploy
}

// Provider supplies the macro context once per cycle.
type Provider interface {
	Fetch(ctx context.Context) (*Context, error)
}

// NeutralProvider is used when no macro data source is configured. Its
// recommended exposure of 0.5 neither raises nor lowers decision thresholds.
type NeutralProvider struct{}

func (NeutralProvider) Fetch(context.Context) (*Context, error) {
	return &Context{
		Phase:               PhaseUnknown,
		RiskLevel:           0.5,
		RecommendedExposure: 0.5,
	}, nil
}
