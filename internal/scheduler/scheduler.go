// Package scheduler owns the trading clock: it runs the cycle pipeline of
// reconciliation, discovery, ranking, analysis, decision and execution, then
// sleeps out the remainder of the polling interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/spotcycle/internal/decision"
	"github.com/ajitpratap0/spotcycle/internal/executor"
	"github.com/ajitpratap0/spotcycle/internal/gateway"
	"github.com/ajitpratap0/spotcycle/internal/macro"
	"github.com/ajitpratap0/spotcycle/internal/marketdata"
	"github.com/ajitpratap0/spotcycle/internal/metrics"
	"github.com/ajitpratap0/spotcycle/internal/mtf"
	"github.com/ajitpratap0/spotcycle/internal/ranking"
	"github.com/ajitpratap0/spotcycle/internal/registry"
	"github.com/ajitpratap0/spotcycle/internal/restricted"
	"github.com/ajitpratap0/spotcycle/internal/strategy"
)

const discoveryLimit = 50

// Config holds the scheduler's tunables.
type Config struct {
	PollingInterval    time.Duration
	MaxPositions       int
	MaxSymbolsPerCycle int
	MinQuoteVolumeUSD  float64
	ReportPath         string
}

// Scheduler wires the pipeline components and drives them once per interval.
type Scheduler struct {
	exchange   gateway.Exchange
	provider   *marketdata.Provider
	ranking    *ranking.Engine
	synth      *mtf.Synthesizer
	evaluator  *strategy.Evaluator
	decider    *decision.Engine
	exec       *executor.Executor
	registry   *registry.Registry
	restricted *restricted.Set
	macro      macro.Provider

	cfg Config
}

// New creates a scheduler. macroProvider may be nil; a neutral provider is
// substituted.
func New(
	exchange gateway.Exchange,
	provider *marketdata.Provider,
	rankingEngine *ranking.Engine,
	synth *mtf.Synthesizer,
	evaluator *strategy.Evaluator,
	decider *decision.Engine,
	exec *executor.Executor,
	reg *registry.Registry,
	restrictedSet *restricted.Set,
	macroProvider macro.Provider,
	cfg Config,
) *Scheduler {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 60 * time.Second
	}
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = 10
	}
	if cfg.MaxSymbolsPerCycle <= 0 {
		cfg.MaxSymbolsPerCycle = 15
	}
	if macroProvider == nil {
		macroProvider = macro.NeutralProvider{}
	}
	return &Scheduler{
		exchange:   exchange,
		provider:   provider,
		ranking:    rankingEngine,
		synth:      synth,
		evaluator:  evaluator,
		decider:    decider,
		exec:       exec,
		registry:   reg,
		restricted: restrictedSet,
		macro:      macroProvider,
		cfg:        cfg,
	}
}

// Run executes cycles until ctx is cancelled. It returns nil on clean
// shutdown and an error only on a fatal invariant violation.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Dur("polling_interval", s.cfg.PollingInterval).
		Int("max_positions", s.cfg.MaxPositions).
		Msg("Scheduler started")

	for {
		start := time.Now()
		if err := s.RunCycle(ctx); err != nil {
			if errors.Is(err, registry.ErrInvariant) {
				return err
			}
			log.Error().Err(err).Msg("Cycle failed")
		}
		metrics.IncCycle()

		sleep := s.cfg.PollingInterval - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return nil
		case <-time.After(sleep):
		}
	}
}

// cycleOutcome is one symbol's line in the iteration summary.
type cycleOutcome struct {
	symbol   string
	action   strategy.Decision
	executed bool
	err      error
}

// RunCycle runs one full pipeline pass. Exported so tests can drive single
// cycles without the outer clock.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	if err := s.registry.Reconcile(ctx, s.exchange); err != nil {
		if errors.Is(err, registry.ErrInvariant) {
			return err
		}
		log.Warn().Err(err).Msg("Reconciliation failed, continuing cycle")
	}
	if err := s.restricted.Reload(); err != nil {
		log.Warn().Err(err).Msg("Restricted symbols reload failed")
	}

	macroCtx, err := s.macro.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Macro context unavailable")
		macroCtx = nil
	}
	if macroCtx != nil {
		s.ranking.SetSentiment(macroCtx.Sentiment)
	}
	regime := s.ranking.DetectRegime(ctx)

	candidates, err := s.exchange.DiscoverLiquidSymbols(ctx, s.cfg.MinQuoteVolumeUSD, discoveryLimit)
	if err != nil {
		return fmt.Errorf("cycle: %w", err)
	}
	candidates = s.filterRestricted(candidates)

	scores := s.ranking.Rank(ctx, candidates, regime)
	s.writeReport(scores)

	if err := s.enforceProtection(ctx); err != nil {
		return err
	}

	outcomes := s.processSelection(ctx, scores, macroCtx, regime)
	s.logSummary(regime, outcomes)
	return firstInvariant(outcomes)
}

// processSelection walks the ranked selection and executes decisions until
// the position slots are exhausted.
func (s *Scheduler) processSelection(ctx context.Context, scores []ranking.TokenScore, macroCtx *macro.Context, regime ranking.Regime) []cycleOutcome {
	slots := s.cfg.MaxPositions - s.registry.Size()
	if slots <= 0 {
		log.Info().Int("max_positions", s.cfg.MaxPositions).Msg("No free position slots")
		return nil
	}

	n := slots + 3
	if n > s.cfg.MaxSymbolsPerCycle {
		n = s.cfg.MaxSymbolsPerCycle
	}
	if n > len(scores) {
		n = len(scores)
	}
	selection := scores[:n]

	// Warm the snapshot cache sequentially through the rate limiter so the
	// per-symbol work below hits memory.
	for _, score := range selection {
		if _, err := s.provider.GetSnapshot(ctx, score.Symbol); err != nil {
			log.Warn().Err(err).Str("symbol", score.Symbol).Msg("Snapshot prefetch failed")
		}
	}

	var outcomes []cycleOutcome
	for _, score := range selection {
		if ctx.Err() != nil {
			break
		}
		if slots <= 0 {
			break
		}

		outcome := s.processSymbol(ctx, score.Symbol, macroCtx, regime)
		outcomes = append(outcomes, outcome)
		if outcome.action == strategy.DecisionBuy && outcome.executed {
			slots--
		}
		if outcome.err != nil && errors.Is(outcome.err, registry.ErrInvariant) {
			break
		}
	}
	return outcomes
}

// processSymbol runs analysis, decision and execution for one symbol.
func (s *Scheduler) processSymbol(ctx context.Context, symbol string, macroCtx *macro.Context, regime ranking.Regime) cycleOutcome {
	if s.registry.Has(symbol) {
		return cycleOutcome{symbol: symbol, action: strategy.DecisionHold}
	}

	signal := s.synth.Analyze(ctx, symbol)
	base, err := s.evaluator.Evaluate(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Base signal unavailable, skipping")
		return cycleOutcome{symbol: symbol, action: strategy.DecisionHold}
	}

	// Market structure is the liquidity score when a snapshot exists.
	var structure *float64
	if snap, snapErr := s.provider.GetSnapshot(ctx, symbol); snapErr == nil {
		structure = &snap.Liquidity
	}

	res := s.decider.Decide(symbol, base, signal, macroCtx, structure, regime)
	outcome := cycleOutcome{symbol: symbol, action: res.Action}

	switch res.Action {
	case strategy.DecisionBuy:
		if err := s.exec.ExecuteBuy(ctx, symbol); err != nil {
			outcome.err = err
			if errors.Is(err, executor.ErrDuplicateBuy) {
				log.Warn().Str("symbol", symbol).Msg("Buy skipped, symbol already held or ordered")
				outcome.err = nil
			} else {
				log.Error().Err(err).Str("symbol", symbol).Msg("Buy failed")
			}
		} else {
			outcome.executed = true
		}
	case strategy.DecisionSell:
		if !s.registry.Has(symbol) {
			break
		}
		if err := s.exec.ExecuteSell(ctx, symbol); err != nil {
			outcome.err = err
			log.Error().Err(err).Str("symbol", symbol).Msg("Sell failed")
		} else {
			outcome.executed = true
		}
	}
	return outcome
}

func (s *Scheduler) filterRestricted(candidates []string) []string {
	out := candidates[:0]
	for _, symbol := range candidates {
		if s.restricted.Contains(symbol) {
			continue
		}
		out = append(out, symbol)
	}
	return out
}

func (s *Scheduler) logSummary(regime ranking.Regime, outcomes []cycleOutcome) {
	summary := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		state := "skipped"
		if o.executed {
			state = "executed"
		}
		summary = append(summary, fmt.Sprintf("%s:%s:%s", o.symbol, o.action, state))
	}
	log.Info().
		Str("regime", string(regime)).
		Int("open_positions", s.registry.Size()).
		Strs("decisions", summary).
		Msg("Cycle complete")
}

func firstInvariant(outcomes []cycleOutcome) error {
	for _, o := range outcomes {
		if o.err != nil && errors.Is(o.err, registry.ErrInvariant) {
			return o.err
		}
	}
	return nil
}
