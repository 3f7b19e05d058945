// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts completed pipeline cycles.
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spotcycle_cycles_total",
		Help: "Total number of completed trading cycles",
	})

	// DecisionsTotal counts decisions by final action.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotcycle_decisions_total",
		Help: "Trading decisions by action",
	}, []string{"action"})

	// OrdersTotal counts executed orders by side and result.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotcycle_orders_total",
		Help: "Orders submitted to the exchange by side and result",
	}, []string{"side", "result"})

	// OpenPositions tracks the current registry size.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spotcycle_open_positions",
		Help: "Number of currently open positions",
	})

	// BreakerState reports each circuit breaker's state (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spotcycle_circuit_breaker_state",
		Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open",
	}, []string{"breaker"})

	// ScoreChangesTotal counts ranking score moves of at least 0.10.
	ScoreChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spotcycle_score_changes_total",
		Help: "Ranking score changes of 0.10 or more between cycles",
	})

	// ReconcileRemovalsTotal counts positions removed by reconciliation.
	ReconcileRemovalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spotcycle_reconcile_removals_total",
		Help: "Positions removed because the exchange no longer supports them",
	})
)

// IncCycle records a completed cycle.
func IncCycle() { CyclesTotal.Inc() }

// ObserveDecision records a decision outcome ("BUY", "SELL", "HOLD").
func ObserveDecision(action string) { DecisionsTotal.WithLabelValues(action).Inc() }

// IncOrder records an order attempt ("buy"/"sell", "ok"/"error").
func IncOrder(side, result string) { OrdersTotal.WithLabelValues(side, result).Inc() }

// SetOpenPositions updates the registry size gauge.
func SetOpenPositions(n int) { OpenPositions.Set(float64(n)) }

// SetBreakerState updates a breaker's state gauge from its string state.
func SetBreakerState(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	BreakerState.WithLabelValues(name).Set(v)
}

// IncScoreChange records a significant ranking move.
func IncScoreChange() { ScoreChangesTotal.Inc() }

// IncReconcileRemoved records a reconciliation removal.
func IncReconcileRemoved() { ReconcileRemovalsTotal.Inc() }
