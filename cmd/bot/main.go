package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/spotcycle/internal/config"
	"github.com/ajitpratap0/spotcycle/internal/decision"
	"github.com/ajitpratap0/spotcycle/internal/executor"
	"github.com/ajitpratap0/spotcycle/internal/gateway"
	"github.com/ajitpratap0/spotcycle/internal/marketdata"
	"github.com/ajitpratap0/spotcycle/internal/metrics"
	"github.com/ajitpratap0/spotcycle/internal/mtf"
	"github.com/ajitpratap0/spotcycle/internal/ranking"
	"github.com/ajitpratap0/spotcycle/internal/registry"
	"github.com/ajitpratap0/spotcycle/internal/restricted"
	"github.com/ajitpratap0/spotcycle/internal/risk"
	"github.com/ajitpratap0/spotcycle/internal/scheduler"
	"github.com/ajitpratap0/spotcycle/internal/strategy"
)

const (
	exitFailure   = 1 // config errors and fatal runtime failures
	exitAuthError = 2 // exchange authentication failures only
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format override (json, console)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		config.InitLogger("info", "console")
		log.Error().Err(err).Msg("Configuration error")
		os.Exit(exitFailure)
	}

	level := cfg.App.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	format := cfg.App.LogFormat
	if *logFormat != "" {
		format = *logFormat
	}
	config.InitLogger(level, format)

	log.Info().
		Str("name", cfg.App.Name).
		Bool("sandbox", cfg.Exchange.Sandbox).
		Str("quote_currency", cfg.Trading.QuoteCurrency).
		Msg("Starting trading bot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := gateway.NewOKXClient(gateway.OKXConfig{
		APIKey:     cfg.Exchange.APIKey,
		Secret:     cfg.Exchange.Secret,
		Passphrase: cfg.Exchange.Passphrase,
		Sandbox:    cfg.Exchange.Sandbox,
	})
	exchange := gateway.New(client, gateway.Config{
		RateLimitPerSecond: cfg.Exchange.RateLimitPerS,
		QuoteCurrency:      cfg.Trading.QuoteCurrency,
	})

	// A balance fetch doubles as the credential check: everything else the
	// bot does is pointless if the account is unreachable.
	authCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	balances, err := exchange.FetchBalance(authCtx)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("Exchange authentication failed")
		os.Exit(exitAuthError)
	}
	quote := balances[cfg.Trading.QuoteCurrency]
	log.Info().
		Float64("quote_free", quote.Free).
		Int("assets", len(balances)).
		Msg("Exchange authenticated")

	reg := registry.New(registry.Config{
		Path:              cfg.Data.PositionsPath,
		QuoteCurrency:     cfg.Trading.QuoteCurrency,
		ReconcileInterval: time.Duration(cfg.Risk.ReconcileIntervalS) * time.Second,
	})
	if err := reg.Bootstrap(ctx, exchange); err != nil {
		log.Error().Err(err).Msg("Position bootstrap failed")
		os.Exit(exitFailure)
	}

	restrictedSet, err := restricted.NewSet(cfg.Data.RestrictedPath)
	if err != nil {
		log.Error().Err(err).Msg("Restricted symbol list unavailable")
		os.Exit(exitFailure)
	}

	provider := marketdata.NewProvider(exchange, time.Duration(cfg.Data.SnapshotTTLS)*time.Second)
	rankingEngine := ranking.NewEngine(exchange, provider, nil, nil)
	synth := mtf.NewSynthesizer(exchange, cfg.Trading.MinCandles)
	evaluator := strategy.NewEvaluator(exchange, cfg.Trading.MinCandles)
	kelly := risk.NewKellyTracker()
	sizer := risk.NewSizer(exchange, cfg.Risk.RiskPerTrade, cfg.Risk.MaxNotionalUSD, kelly)
	exec := executor.New(exchange, reg, sizer, restrictedSet, kelly, executor.Config{
		QuoteCurrency: cfg.Trading.QuoteCurrency,
		SettleTimeout: time.Duration(cfg.Risk.SettleTimeoutS) * time.Second,
	})

	sched := scheduler.New(exchange, provider, rankingEngine, synth, evaluator,
		decision.NewEngine(), exec, reg, restrictedSet, nil, scheduler.Config{
			PollingInterval:    time.Duration(cfg.Trading.PollingIntervalS) * time.Second,
			MaxPositions:       cfg.Trading.MaxPositions,
			MaxSymbolsPerCycle: cfg.Trading.MaxSymbolsPerCycle,
			MinQuoteVolumeUSD:  cfg.Trading.MinQuoteVolumeUSD,
			ReportPath:         cfg.Data.ReportPath,
		})

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, config.NewLogger("metrics_server"))
		if err := metricsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Metrics server failed to start")
		}
	}

	runErr := sched.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
		shutdownCancel()
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error().Err(runErr).Msg("Scheduler terminated")
		os.Exit(exitFailure)
	}
	log.Info().Msg("Shutdown complete")
}
