// Package config loads the bot configuration from a YAML file and the
// environment, with environment variables taking precedence.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the root configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Data     DataConfig     `mapstructure:"data"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name      string `mapstructure:"name"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // "json" or "console"
}

// ExchangeConfig contains exchange credentials and connection settings
type ExchangeConfig struct {
	APIKey        string  `mapstructure:"api_key"`
	Secret        string  `mapstructure:"secret"`
	Passphrase    string  `mapstructure:"passphrase"`
	Sandbox       bool    `mapstructure:"sandbox"`
	RateLimitPerS float64 `mapstructure:"rate_limit_per_s"`
}

// TradingConfig contains cycle and selection settings
type TradingConfig struct {
	QuoteCurrency      string  `mapstructure:"quote_currency"`
	PollingIntervalS   int     `mapstructure:"polling_interval_s"`
	MaxPositions       int     `mapstructure:"max_positions"`
	MaxSymbolsPerCycle int     `mapstructure:"max_symbols_per_cycle"`
	MinQuoteVolumeUSD  float64 `mapstructure:"min_quote_volume_usd"`
	MinCandles         int     `mapstructure:"min_candles"`
}

// RiskConfig contains sizing settings
type RiskConfig struct {
	RiskPerTrade       float64 `mapstructure:"risk_per_trade"`
	MaxNotionalUSD     float64 `mapstructure:"max_notional_usd"`
	SettleTimeoutS     int     `mapstructure:"settle_timeout_s"`
	ReconcileIntervalS int     `mapstructure:"reconcile_interval_s"`
}

// DataConfig contains local state and report file locations
type DataConfig struct {
	PositionsPath  string `mapstructure:"positions_path"`
	RestrictedPath string `mapstructure:"restricted_path"`
	ReportPath     string `mapstructure:"report_path"`
	SnapshotTTLS   int    `mapstructure:"snapshot_ttl_s"`
}

// MetricsConfig contains the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	bindEnv(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindEnv maps the conventional environment variable names onto config keys.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("exchange.api_key", "EXCHANGE_API_KEY")
	_ = v.BindEnv("exchange.secret", "EXCHANGE_SECRET")
	_ = v.BindEnv("exchange.passphrase", "EXCHANGE_PASSPHRASE")
	_ = v.BindEnv("exchange.sandbox", "EXCHANGE_SANDBOX")
	_ = v.BindEnv("exchange.rate_limit_per_s", "RATE_LIMIT_PER_S")
	_ = v.BindEnv("trading.polling_interval_s", "POLLING_INTERVAL_S")
	_ = v.BindEnv("trading.max_positions", "MAX_POSITIONS")
	_ = v.BindEnv("trading.max_symbols_per_cycle", "MAX_SYMBOLS_PER_CYCLE")
	_ = v.BindEnv("trading.min_quote_volume_usd", "MIN_QUOTE_VOLUME_USD")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "spotcycle")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("exchange.sandbox", false)
	v.SetDefault("exchange.rate_limit_per_s", 15.0)

	v.SetDefault("trading.quote_currency", "USDT")
	v.SetDefault("trading.polling_interval_s", 60)
	v.SetDefault("trading.max_positions", 10)
	v.SetDefault("trading.max_symbols_per_cycle", 15)
	v.SetDefault("trading.min_quote_volume_usd", 4e7)
	v.SetDefault("trading.min_candles", 200)

	v.SetDefault("risk.risk_per_trade", 0.01)
	v.SetDefault("risk.max_notional_usd", 1000.0)
	v.SetDefault("risk.settle_timeout_s", 5)
	v.SetDefault("risk.reconcile_interval_s", 60)

	v.SetDefault("data.positions_path", "data/bot_positions.json")
	v.SetDefault("data.restricted_path", "data/restricted_symbols.json")
	v.SetDefault("data.report_path", "data/ranking_report.yaml")
	v.SetDefault("data.snapshot_ttl_s", 30)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// Validate checks that the configuration is usable for live trading.
func (c *Config) Validate() error {
	if c.Exchange.APIKey == "" || c.Exchange.Secret == "" || c.Exchange.Passphrase == "" {
		return fmt.Errorf("exchange credentials missing: set EXCHANGE_API_KEY, EXCHANGE_SECRET and EXCHANGE_PASSPHRASE")
	}
	if c.Exchange.RateLimitPerS <= 0 {
		return fmt.Errorf("exchange.rate_limit_per_s must be positive, got %v", c.Exchange.RateLimitPerS)
	}
	if c.Trading.PollingIntervalS <= 0 {
		return fmt.Errorf("trading.polling_interval_s must be positive, got %d", c.Trading.PollingIntervalS)
	}
	if c.Trading.MaxPositions <= 0 {
		return fmt.Errorf("trading.max_positions must be positive, got %d", c.Trading.MaxPositions)
	}
	if c.Trading.MaxSymbolsPerCycle <= 0 {
		return fmt.Errorf("trading.max_symbols_per_cycle must be positive, got %d", c.Trading.MaxSymbolsPerCycle)
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 0.1 {
		return fmt.Errorf("risk.risk_per_trade must be in (0, 0.1], got %v", c.Risk.RiskPerTrade)
	}
	if c.Risk.MaxNotionalUSD <= 0 {
		return fmt.Errorf("risk.max_notional_usd must be positive, got %v", c.Risk.MaxNotionalUSD)
	}
	return nil
}
