package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/adapters/binanceclient"
	"cryptoSignalBot/internal/adapters/logger"
	"cryptoSignalBot/internal/adapters/metrics"
	"cryptoSignalBot/internal/adapters/notifier"
	"cryptoSignalBot/internal/adapters/sqlite"
	"cryptoSignalBot/internal/app"
)

func main() {
	os.Exit(run())
}

// run wires the application and returns the process exit code. Deferred
// cleanup runs before main exits.
func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
		return 1
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel)
	slog.SetDefault(appLogger.Slog())
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Journal (Database Adapter)
	journal, err := sqlite.NewJournal(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize intent journal")
		return 1
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing intent journal")
		}
	}()

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		return 1
	}
	if err := binanceClient.Ping(ctx); err != nil {
		appLogger.Warn(ctx, "Binance ping failed, continuing", map[string]interface{}{"error": err.Error()})
	}

	// 5. Initialize Notifier and Metrics
	alerts, err := notifier.New(notifier.Config{Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize notifier")
		return 1
	}
	appMetrics := metrics.NewMetrics()

	// 6. Initialize Application Service
	tradingService, err := app.NewTradingService(app.Config{
		Symbol:          cfg.Symbol,
		Granularity:     cfg.Granularity,
		MaxCandles:      cfg.MaxCandles,
		MinCandles:      cfg.MinCandles,
		HistoryLimit:    cfg.HistoryLimit,
		RenderInterval:  cfg.RenderInterval,
		ScoredSignals:   cfg.ScoredSignals,
		AutoTrading:     cfg.AutoTrading,
		AlertThreshold:  cfg.AlertThreshold,
		Cooldown:        cfg.TradeCooldown,
		TradeAmount:     cfg.TradeAmount,
		IntentQueueSize: cfg.IntentQueueSize,
	}, app.Dependencies{
		Logger:   appLogger,
		Market:   binanceClient,
		Executor: binanceClient,
		Journal:  journal,
		Notifier: alerts,
		Chart:    appMetrics,
		Metrics:  appMetrics,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		return 1
	}

	// 7. Start the Service and the metrics endpoint
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tradingService.Start(gctx)
	})
	if cfg.MetricsAddr != "" {
		server := metrics.NewServer(cfg.MetricsAddr, appMetrics)
		g.Go(func() error {
			appLogger.Info(gctx, "Serving metrics", map[string]interface{}{"addr": cfg.MetricsAddr})
			return server.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		appLogger.Error(context.Background(), err, "Application exited with error")
		return 1
	}
	appLogger.Info(context.Background(), "Application finished gracefully.")
	return 0
}
