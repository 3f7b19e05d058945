// Package registry is the single source of truth for open positions. All
// reads and writes go through it; every mutation is persisted atomically to
// the snapshot file before the call returns.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/spotcycle/internal/metrics"
)

// ErrInvariant marks a registry invariant violation. Callers must treat it
// as fatal: continuing would trade against inconsistent state.
var ErrInvariant = errors.New("invariant violation")

// Position is one open long position. Field names match the snapshot file
// layout; EntryTime is unix seconds.
type Position struct {
	Symbol            string  `json:"symbol"`
	Side              string  `json:"side"`
	Amount            float64 `json:"amount"`
	EntryPrice        float64 `json:"entry_price"`
	StopLoss          float64 `json:"stop_loss"`
	TakeProfit        float64 `json:"take_profit"`
	OrderID           string  `json:"order_id"`
	ProtectionAlgoID  *string `json:"protection_algo_id"`
	ManagedByExchange bool    `json:"managed_by_exchange"`
	EntryTime         float64 `json:"entry_time"`
}

// Config holds the registry's tunables.
type Config struct {
	Path              string  // snapshot file path
	QuoteCurrency     string  // e.g. "USDT"
	Dust              float64 // balances at or below this are ignored
	MinPositionValue  float64 // minimum notional to synthesize a position
	ReconcileInterval time.Duration
}

// Registry is the mutex-guarded position map. The mutex is never held
// across network I/O; reconciliation fetches exchange state first and locks
// only to mutate.
type Registry struct {
	mu        sync.Mutex
	positions map[string]*Position

	path              string
	quote             string
	dust              float64
	minPositionValue  float64
	reconcileInterval time.Duration
	lastReconcile     time.Time
}

// New creates a registry persisting to cfg.Path.
func New(cfg Config) *Registry {
	if cfg.Path == "" {
		cfg.Path = "data/bot_positions.json"
	}
	if cfg.QuoteCurrency == "" {
		cfg.QuoteCurrency = "USDT"
	}
	if cfg.Dust <= 0 {
		cfg.Dust = 1e-8
	}
	if cfg.MinPositionValue <= 0 {
		cfg.MinPositionValue = 0.01
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 60 * time.Second
	}
	return &Registry{
		positions:         make(map[string]*Position),
		path:              cfg.Path,
		quote:             cfg.QuoteCurrency,
		dust:              cfg.Dust,
		minPositionValue:  cfg.MinPositionValue,
		reconcileInterval: cfg.ReconcileInterval,
	}
}

// Has reports whether symbol has an open position.
func (r *Registry) Has(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.positions[symbol]
	return ok
}

// Get returns a copy of the position for symbol.
func (r *Registry) Get(symbol string) (Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Size returns the number of open positions.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions)
}

// Positions returns a copy of every open position.
func (r *Registry) Positions() []Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Position, 0, len(r.positions))
	for _, p := range r.positions {
		out = append(out, *p)
	}
	return out
}

// Insert adds a position and persists. A second insert for the same symbol or
// a non-positive amount is an invariant violation and returns an error the
// caller must treat as fatal.
func (r *Registry) Insert(p Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := checkPosition(&p); err != nil {
		return err
	}
	if _, exists := r.positions[p.Symbol]; exists {
		return fmt.Errorf("%w: duplicate position for %s", ErrInvariant, p.Symbol)
	}

	r.positions[p.Symbol] = &p
	if err := r.persistLocked(); err != nil {
		return err
	}
	metrics.SetOpenPositions(len(r.positions))

	log.Info().
		Str("symbol", p.Symbol).
		Float64("amount", p.Amount).
		Float64("entry_price", p.EntryPrice).
		Bool("managed_by_exchange", p.ManagedByExchange).
		Msg("Position opened")

	return nil
}

// Update applies fn to the position for symbol and persists. Missing symbols
// are a no-op.
func (r *Registry) Update(symbol string, fn func(*Position)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[symbol]
	if !ok {
		return nil
	}
	fn(p)
	if err := checkPosition(p); err != nil {
		return err
	}
	if p.Symbol != symbol {
		return fmt.Errorf("%w: update changed symbol %s to %s", ErrInvariant, symbol, p.Symbol)
	}
	return r.persistLocked()
}

// Delete removes the position for symbol and persists.
func (r *Registry) Delete(symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.positions[symbol]; !ok {
		return nil
	}
	delete(r.positions, symbol)
	if err := r.persistLocked(); err != nil {
		return err
	}
	metrics.SetOpenPositions(len(r.positions))

	log.Info().Str("symbol", symbol).Msg("Position closed")
	return nil
}

func checkPosition(p *Position) error {
	if p.Symbol == "" {
		return fmt.Errorf("%w: position without symbol", ErrInvariant)
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w: non-positive amount %f for %s", ErrInvariant, p.Amount, p.Symbol)
	}
	return nil
}
