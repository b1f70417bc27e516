package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"cryptoSignalBot/internal/adapters/logger" // Import the logger package for LogLevel
	"cryptoSignalBot/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string `env:"BINANCE_API_KEY"`
	SecretKey string `env:"BINANCE_API_SECRET"`
	IsTestnet bool   `env:"IS_TESTNET" envDefault:"true"` // Default to testnet for safety

	// Market
	Symbol      string             `env:"SYMBOL" envDefault:"BTCUSDT"`
	Granularity domain.Granularity `env:"GRANULARITY" envDefault:"1d"`

	// Series
	MaxCandles     int           `env:"MAX_CANDLES" envDefault:"1000"`
	MinCandles     int           `env:"MIN_CANDLES" envDefault:"200"`   // Backfill target
	HistoryLimit   int           `env:"HISTORY_LIMIT" envDefault:"500"` // Candles per historical request
	RenderInterval time.Duration `env:"RENDER_INTERVAL" envDefault:"1s"`
	ScoredSignals  bool          `env:"SCORED_SIGNALS" envDefault:"true"`

	// Signal gate
	AutoTrading     bool          `env:"AUTO_TRADING" envDefault:"false"`
	TradeAmount     float64       `env:"TRADE_AMOUNT" envDefault:"0.001"`
	AlertThreshold  float64       `env:"ALERT_THRESHOLD" envDefault:"85"`
	TradeCooldown   time.Duration `env:"TRADE_COOLDOWN" envDefault:"60s"`
	IntentQueueSize int           `env:"INTENT_QUEUE_SIZE" envDefault:"16"`

	// Database
	DBPath string `env:"DB_PATH" envDefault:"./data/signals.db"`

	// Metrics, empty disables the HTTP endpoint
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	// Logging
	LogLevelName string          `env:"LOG_LEVEL" envDefault:"INFO"`
	LogLevel     logger.LogLevel // Parsed from LogLevelName

	// Connection Settings
	ReconnectDelaySeconds int           `env:"RECONNECT_DELAY_SECONDS" envDefault:"5"`
	ReconnectDelay        time.Duration // Derived from ReconnectDelaySeconds
	MaxReconnectAttempts  int           `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"10"`
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()
	return parse(env.Options{})
}

// LoadConfigFrom parses the given variables instead of the process environment.
func LoadConfigFrom(environment map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environment})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	cfg.LogLevel = logger.ParseLevel(cfg.LogLevelName) // Use the parser from the logger package
	cfg.ReconnectDelay = time.Duration(cfg.ReconnectDelaySeconds) * time.Second

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate collects every violation into one error.
func (c *Config) Validate() error {
	var errs []string

	// Keys are only needed to place orders
	if c.AutoTrading && (c.APIKey == "" || c.SecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set when AUTO_TRADING is enabled")
	}

	if strings.TrimSpace(c.Symbol) == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	if c.MaxCandles <= 0 {
		errs = append(errs, "MAX_CANDLES must be positive")
	}
	if c.MinCandles < 0 {
		errs = append(errs, "MIN_CANDLES cannot be negative")
	} else if c.MinCandles > c.MaxCandles {
		errs = append(errs, "MIN_CANDLES cannot exceed MAX_CANDLES")
	}
	if c.HistoryLimit <= 0 || c.HistoryLimit > 1500 {
		errs = append(errs, "HISTORY_LIMIT must be between 1 and 1500")
	}
	if c.RenderInterval <= 0 {
		errs = append(errs, "RENDER_INTERVAL must be positive")
	}

	if c.TradeAmount <= 0 {
		errs = append(errs, "TRADE_AMOUNT must be positive")
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 100 {
		errs = append(errs, "ALERT_THRESHOLD must be between 0 and 100")
	}
	if c.TradeCooldown <= 0 {
		errs = append(errs, "TRADE_COOLDOWN must be positive")
	}
	if c.IntentQueueSize <= 0 {
		errs = append(errs, "INTENT_QUEUE_SIZE must be positive")
	}

	if c.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	if c.ReconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	if c.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
