package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cryptoSignalBot/internal/adapters/metrics"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/risk"
	"cryptoSignalBot/internal/strategy/indicators"
)

const (
	DefaultMinCandles      = 200
	DefaultHistoryLimit    = 500
	DefaultRenderInterval  = time.Second
	DefaultIntentQueueSize = 16

	tradeBufferSize     = 1024
	orderTimeout        = 10 * time.Second
	streamShutdownGrace = 5 * time.Second
	historyRetryDelay   = 5 * time.Second
)

// Config holds the settings of the trading service.
type Config struct {
	Symbol          string
	Granularity     domain.Granularity
	MaxCandles      int
	MinCandles      int // Backfill keeps paging while the series is shorter
	HistoryLimit    int // Candles per historical request
	RenderInterval  time.Duration
	ScoredSignals   bool
	AutoTrading     bool
	AlertThreshold  float64
	Cooldown        time.Duration
	TradeAmount     float64
	IntentQueueSize int
	Now             func() time.Time
}

// Dependencies are the collaborators of the trading service. Journal, Chart and
// Metrics are optional.
type Dependencies struct {
	Logger   ports.Logger
	Market   ports.MarketDataSource
	Executor ports.ExecutionClient
	Journal  ports.IntentJournal
	Notifier ports.Notifier
	Chart    ports.ChartSink
	Metrics  *metrics.Metrics
}

type backfillResult struct {
	gen     int
	candles map[int64]domain.Candlestick
	err     error
}

type historyResult struct {
	gen     int
	market  domain.Market
	candles map[int64]domain.Candlestick
	err     error
}

type execResult struct {
	intent domain.TradeIntent
	order  *ports.OrderResponse
	err    error
}

type command struct {
	run   func(ctx context.Context) error
	reply chan error
}

// TradingService drives the aggregation engine from the live trade stream and
// hands trade intents to the execution worker. The engine is owned by the run
// loop goroutine; every other goroutine talks to it through channels.
type TradingService struct {
	cfg      Config
	logger   ports.Logger
	market   ports.MarketDataSource
	executor ports.ExecutionClient
	journal  ports.IntentJournal
	notifier ports.Notifier
	chart    ports.ChartSink
	metrics  *metrics.Metrics

	engine *Engine
	gate   *risk.Gate

	trades    chan domain.TradeEvent
	backfills chan backfillResult
	histories chan historyResult
	results   chan execResult
	intents   chan domain.TradeIntent
	commands  chan command
	stopped   chan struct{}
	running   atomic.Bool

	// Loop-owned state
	current     domain.Market
	gen         int // Bumped on every market switch; stale results are dropped
	loadingMore bool
	// Set when the last history load failed; the render tick retries it.
	historyMissing bool
	historyRetryAt time.Time
	streamDone     chan struct{}
	streamStop  chan struct{}
}

// NewTradingService creates a new application service instance.
func NewTradingService(cfg Config, deps Dependencies) (*TradingService, error) {
	// Validate dependencies
	if deps.Logger == nil || deps.Market == nil || deps.Executor == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}

	// Validate config values needed by service
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("configuration Symbol must be set")
	}
	if cfg.Granularity.BucketWidth() == 0 {
		return nil, fmt.Errorf("configuration Granularity is invalid: %w", domain.ErrInvalidGranularity)
	}
	if cfg.MinCandles < 0 {
		return nil, fmt.Errorf("configuration MinCandles cannot be negative")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.RenderInterval <= 0 {
		cfg.RenderInterval = DefaultRenderInterval
	}
	if cfg.IntentQueueSize <= 0 {
		cfg.IntentQueueSize = DefaultIntentQueueSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TradingService{
		cfg:      cfg,
		logger:   deps.Logger,
		market:   deps.Market,
		executor: deps.Executor,
		journal:  deps.Journal,
		notifier: deps.Notifier,
		chart:    deps.Chart,
		metrics:  deps.Metrics,
		engine: NewEngine(EngineConfig{
			Granularity:   cfg.Granularity,
			MaxCandles:    cfg.MaxCandles,
			ScoredSignals: cfg.ScoredSignals,
		}),
		gate: risk.NewGate(risk.GateConfig{
			Symbol:         cfg.Symbol,
			AlertThreshold: cfg.AlertThreshold,
			Cooldown:       cfg.Cooldown,
			TradeAmount:    cfg.TradeAmount,
			AutoTrading:    cfg.AutoTrading,
			Now:            cfg.Now,
		}),
		trades:    make(chan domain.TradeEvent, tradeBufferSize),
		backfills: make(chan backfillResult, 1),
		histories: make(chan historyResult, 1),
		results:   make(chan execResult, cfg.IntentQueueSize),
		intents:   make(chan domain.TradeIntent, cfg.IntentQueueSize),
		commands:  make(chan command),
		stopped:   make(chan struct{}),
		current:   domain.Market{Symbol: cfg.Symbol, Granularity: cfg.Granularity},
	}, nil
}

// Start loads history, opens the trade stream and runs until ctx is
// cancelled. Exchange failures are reported as alerts and retried; they do
// not stop the service.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...", map[string]interface{}{
		"symbol":      s.current.Symbol,
		"granularity": s.current.Granularity.String(),
		"autoTrading": s.gate.Enabled(),
	})
	defer close(s.stopped)

	// --- Initialization Steps ---
	history, err := s.market.FetchCandles(ctx, s.current.Symbol, s.current.Granularity, nil, s.cfg.HistoryLimit)
	s.loadHistory(ctx, s.current, history, err)

	g, gctx := errgroup.WithContext(ctx)

	s.restartStream(gctx)
	if !s.historyMissing {
		s.maybeBackfill(gctx)
	}

	s.running.Store(true)
	defer s.running.Store(false)

	g.Go(func() error { return s.executionWorker(gctx) })
	g.Go(func() error { return s.run(gctx) })

	err = g.Wait()
	s.logger.Info(ctx, "Trading Service stopped.")
	return err
}

// --- Commands ---

// SelectMarket switches symbol and/or granularity. History for the new market
// is fetched in the background and replaces the series when it arrives.
func (s *TradingService) SelectMarket(ctx context.Context, market domain.Market) error {
	if market.Symbol == "" || market.Granularity.BucketWidth() == 0 {
		return fmt.Errorf("SelectMarket failed: %w", ports.ErrInvalidRequest)
	}
	return s.submit(ctx, func(ctx context.Context) error {
		s.switchMarket(ctx, market)
		return nil
	})
}

// ToggleAutoTrading flips automatic trading and raises an Info alert.
func (s *TradingService) ToggleAutoTrading(ctx context.Context) error {
	return s.submit(ctx, func(ctx context.Context) error {
		alert := s.gate.Toggle()
		s.logger.Info(ctx, alert.Message, map[string]interface{}{"autoTrading": s.gate.Enabled()})
		s.notify(ctx, alert)
		return nil
	})
}

// LoadMore requests one page of candles older than the oldest retained one.
// It returns ports.ErrBackfillInFlight while a previous request is pending.
// A trade stream that has given up is reopened.
func (s *TradingService) LoadMore(ctx context.Context) error {
	return s.submit(ctx, func(ctx context.Context) error {
		if s.streamDone == nil {
			s.restartStream(ctx)
		}
		return s.requestBackfill(ctx)
	})
}

// SetScoredSignals turns pattern scoring on or off.
func (s *TradingService) SetScoredSignals(ctx context.Context, enabled bool) error {
	return s.submit(ctx, func(ctx context.Context) error {
		s.engine.SetScoredSignals(enabled)
		s.recompute(ctx, false)
		s.logger.Info(ctx, "Scored signals toggled", map[string]interface{}{"enabled": enabled})
		return nil
	})
}

func (s *TradingService) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.running.Load() {
		return ports.ErrServiceStopped
	}
	cmd := command{run: fn, reply: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-s.stopped:
		return ports.ErrServiceStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-s.stopped:
		return ports.ErrServiceStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Run loop ---

func (s *TradingService) run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.RenderInterval)
	defer ticker.Stop()
	defer s.stopStream(context.Background())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
			return nil

		case ev := <-s.trades:
			s.handleTrade(ctx, ev)

		case res := <-s.backfills:
			s.handleBackfill(ctx, res)

		case res := <-s.histories:
			s.handleHistory(ctx, res)

		case res := <-s.results:
			s.handleExecResult(ctx, res)

		case cmd := <-s.commands:
			cmd.reply <- cmd.run(ctx)

		case <-ticker.C:
			s.retryHistory(ctx)
			s.render(ctx)

		case <-s.streamDone:
			if ctx.Err() != nil {
				return nil
			}
			s.streamDone, s.streamStop = nil, nil
			err := errors.New("trade stream closed unexpectedly")
			s.metrics.StreamError()
			s.logger.Error(ctx, err, "Trade stream stopped", map[string]interface{}{"symbol": s.current.Symbol})
			s.notify(ctx, domain.Alert{Message: fmt.Sprintf("%s trade stream stopped, load more or switch market to reconnect", s.current.Symbol), Type: domain.AlertError})
		}
	}
}

func (s *TradingService) handleTrade(ctx context.Context, ev domain.TradeEvent) {
	if ev.Symbol != s.current.Symbol {
		s.metrics.TradeRejected()
		return
	}
	s.engine.IngestTrade(ev)
	s.metrics.TradeIngested()
	s.recompute(ctx, true)
}

// recompute brings the engine up to date and passes the evaluation of the
// latest candle through the gate.
func (s *TradingService) recompute(ctx context.Context, live bool) {
	started := time.Now()
	ev := s.engine.Recompute(live)
	s.metrics.ObserveRecompute(ev.Full, time.Since(started))
	if !ev.HasCandle {
		return
	}

	if ev.Live && ev.Momentum.Strength() > indicators.StrongMomentumStrength {
		s.logger.Info(ctx, "Strong momentum detected", map[string]interface{}{
			"symbol":      s.current.Symbol,
			"timestamp":   ev.Timestamp,
			"momentum":    ev.Momentum.Momentum,
			"volumeRatio": ev.Momentum.VolumeRatio,
			"buy":         ev.Momentum.Buy,
			"strength":    ev.Momentum.Strength(),
		})
	}
	if ev.Buy.TotalScore > 0 || ev.Sell.TotalScore > 0 {
		s.logger.Debug(ctx, "Scored signal at latest candle", map[string]interface{}{
			"timestamp": ev.Timestamp,
			"buyScore":  ev.Buy.TotalScore,
			"sellScore": ev.Sell.TotalScore,
		})
	}

	decision := s.gate.Evaluate(ev.Signals)
	for _, alert := range decision.Alerts {
		s.notify(ctx, alert)
	}
	for _, intent := range decision.Intents {
		s.enqueue(ctx, intent)
	}
}

func (s *TradingService) render(ctx context.Context) {
	snapshot := s.engine.Snapshot(s.current, s.gate.Enabled(), s.cfg.Now())
	if s.chart == nil {
		return
	}
	if err := s.chart.Render(ctx, snapshot); err != nil {
		s.logger.Warn(ctx, "Failed to render snapshot", map[string]interface{}{"error": err.Error()})
	}
}

func (s *TradingService) notify(ctx context.Context, alert domain.Alert) {
	if alert.Time.IsZero() {
		alert.Time = s.cfg.Now()
	}
	s.metrics.AlertRaised(alert.Type)
	if err := s.notifier.Notify(ctx, alert); err != nil {
		s.logger.Warn(ctx, "Failed to deliver alert", map[string]interface{}{"error": err.Error(), "type": string(alert.Type)})
	}
}

// --- Backfill ---

// requestBackfill must run on the loop.
func (s *TradingService) requestBackfill(ctx context.Context) error {
	if s.loadingMore {
		return ports.ErrBackfillInFlight
	}
	s.loadingMore = true

	var before *int64
	fields := map[string]interface{}{"symbol": s.current.Symbol, "limit": s.cfg.HistoryLimit}
	if oldest, ok := s.engine.OldestTimestamp(); ok {
		before = &oldest
		fields["before"] = oldest
	}
	market, gen, limit := s.current, s.gen, s.cfg.HistoryLimit
	s.logger.Debug(ctx, "Requesting older candles", fields)

	go func() {
		candles, err := s.market.FetchCandles(ctx, market.Symbol, market.Granularity, before, limit)
		select {
		case s.backfills <- backfillResult{gen: gen, candles: candles, err: err}:
		case <-ctx.Done():
		}
	}()
	return nil
}

func (s *TradingService) maybeBackfill(ctx context.Context) {
	if s.engine.Len() >= s.cfg.MinCandles {
		return
	}
	if err := s.requestBackfill(ctx); err != nil && !errors.Is(err, ports.ErrBackfillInFlight) {
		s.logger.Error(ctx, err, "Failed to request backfill")
	}
}

func (s *TradingService) handleBackfill(ctx context.Context, res backfillResult) {
	if res.gen != s.gen {
		return
	}
	s.loadingMore = false

	if res.err != nil {
		if s.historyMissing {
			s.historyRetryAt = s.cfg.Now().Add(historyRetryDelay)
		}
		s.metrics.BackfillFinished("error")
		s.logger.Error(ctx, res.err, "Failed to load older candles", map[string]interface{}{"symbol": s.current.Symbol})
		s.notify(ctx, domain.Alert{Message: fmt.Sprintf("Failed to load more candles: %v", res.err), Type: domain.AlertError})
		return
	}

	s.historyMissing = false
	added := s.engine.MergeBackfill(res.candles)
	if added == 0 {
		s.metrics.BackfillFinished("empty")
		s.logger.Info(ctx, "No older candles available", map[string]interface{}{"symbol": s.current.Symbol, "count": s.engine.Len()})
		return
	}
	s.metrics.BackfillFinished("ok")
	s.recompute(ctx, false)
	s.logger.Info(ctx, "Merged older candles", map[string]interface{}{"added": added, "count": s.engine.Len()})
	s.maybeBackfill(ctx)
}

// --- Market switch ---

func (s *TradingService) switchMarket(ctx context.Context, market domain.Market) {
	s.logger.Info(ctx, "Switching market", map[string]interface{}{
		"from":        s.current.Symbol,
		"to":          market.Symbol,
		"granularity": market.Granularity.String(),
	})
	s.stopStream(ctx)

	s.gen++
	s.current = market
	s.loadingMore = false
	s.historyMissing = false
	s.gate.SetSymbol(market.Symbol)

	gen, limit := s.gen, s.cfg.HistoryLimit
	go func() {
		candles, err := s.market.FetchCandles(ctx, market.Symbol, market.Granularity, nil, limit)
		select {
		case s.histories <- historyResult{gen: gen, market: market, candles: candles, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *TradingService) handleHistory(ctx context.Context, res historyResult) {
	if res.gen != s.gen {
		return
	}
	s.loadHistory(ctx, res.market, res.candles, res.err)
	if !s.restartStream(ctx) || s.historyMissing {
		return
	}
	s.maybeBackfill(ctx)
}

// loadHistory installs a freshly fetched series. A failed fetch installs an
// empty one, raises an Error alert and schedules a retry.
func (s *TradingService) loadHistory(ctx context.Context, market domain.Market, candles map[int64]domain.Candlestick, err error) {
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load candles for market", map[string]interface{}{"symbol": market.Symbol})
		s.notify(ctx, domain.Alert{Message: fmt.Sprintf("Failed to load %s candles: %v", market.Symbol, err), Type: domain.AlertError})
		candles = nil
		s.historyMissing = true
		s.historyRetryAt = s.cfg.Now().Add(historyRetryDelay)
	}
	s.engine.Replace(market.Granularity, candles)
	s.recompute(ctx, false)
	s.logger.Info(ctx, "Loaded candles for market", map[string]interface{}{"symbol": market.Symbol, "count": s.engine.Len()})
}

// retryHistory requests history again once the retry delay after a failed
// load has passed.
func (s *TradingService) retryHistory(ctx context.Context) {
	if !s.historyMissing || s.loadingMore || s.cfg.Now().Before(s.historyRetryAt) {
		return
	}
	s.logger.Info(ctx, "Retrying candle history", map[string]interface{}{"symbol": s.current.Symbol})
	if err := s.requestBackfill(ctx); err != nil && !errors.Is(err, ports.ErrBackfillInFlight) {
		s.logger.Error(ctx, err, "Failed to request backfill")
	}
}

// --- Trade stream ---

func (s *TradingService) startStream(ctx context.Context) error {
	done, stop, err := s.market.StreamTrades(ctx, s.current.Symbol, func(ev domain.TradeEvent) {
		select {
		case s.trades <- ev:
		case <-ctx.Done():
		}
	}, s.handleStreamError)
	if err != nil {
		return err
	}
	s.streamDone, s.streamStop = done, stop
	s.logger.Info(ctx, "Trade stream started", map[string]interface{}{"symbol": s.current.Symbol})
	return nil
}

// restartStream opens the trade stream for the current market and reports a
// failure as an Error alert.
func (s *TradingService) restartStream(ctx context.Context) bool {
	if err := s.startStream(ctx); err != nil {
		s.metrics.StreamError()
		s.logger.Error(ctx, err, "Failed to start trade stream", map[string]interface{}{"symbol": s.current.Symbol})
		s.notify(ctx, domain.Alert{Message: fmt.Sprintf("Failed to stream %s trades: %v", s.current.Symbol, err), Type: domain.AlertError})
		return false
	}
	return true
}

func (s *TradingService) stopStream(ctx context.Context) {
	if s.streamStop == nil {
		return
	}
	close(s.streamStop)
	select {
	case <-s.streamDone:
		s.logger.Info(ctx, "Trade stream shut down gracefully")
	case <-time.After(streamShutdownGrace):
		s.logger.Warn(ctx, "Timeout waiting for trade stream to shut down")
	}
	s.streamStop, s.streamDone = nil, nil
}

// handleStreamError is called from the stream goroutine.
func (s *TradingService) handleStreamError(err error) {
	s.metrics.StreamError()
	s.logger.Error(context.Background(), err, "Trade stream error reported")
}

// --- Execution ---

// enqueue hands an intent to the execution worker without blocking the loop.
func (s *TradingService) enqueue(ctx context.Context, intent domain.TradeIntent) {
	select {
	case s.intents <- intent:
		s.logger.Info(ctx, "Trade intent dispatched", map[string]interface{}{
			"symbol":   intent.Symbol,
			"side":     intent.Side,
			"price":    intent.Price,
			"strength": intent.Strength,
		})
	default:
		s.metrics.IntentFinished("dropped")
		s.logger.Warn(ctx, "Trade intent dropped", map[string]interface{}{
			"error": ports.ErrIntentQueueFull.Error(),
			"side":  intent.Side,
		})
	}
}

func (s *TradingService) executionWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case intent := <-s.intents:
			res := s.execute(ctx, intent)
			select {
			case s.results <- res:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// execute places the order behind an intent and journals the outcome. It runs
// on the worker goroutine and touches no loop state.
func (s *TradingService) execute(ctx context.Context, intent domain.TradeIntent) execResult {
	op := "execute"
	orderCtx, cancel := context.WithTimeout(ctx, orderTimeout)
	defer cancel()

	quantity := decimal.NewFromFloat(intent.Amount).String()
	order, err := s.executor.PlaceMarketOrder(orderCtx, intent.Symbol, intent.Side, quantity)

	record := &ports.IntentRecord{Intent: intent, Status: domain.IntentFilled, CreatedAt: s.cfg.Now()}
	if err != nil {
		record.Status = domain.IntentFailed
		record.Error = err.Error()
	} else if order != nil {
		record.OrderID = order.OrderID
	}
	if s.journal != nil {
		if _, jerr := s.journal.Record(ctx, record); jerr != nil {
			s.logger.Error(ctx, jerr, op+": Failed to journal trade intent", map[string]interface{}{"symbol": intent.Symbol, "side": intent.Side})
		}
	}
	return execResult{intent: intent, order: order, err: err}
}

func (s *TradingService) handleExecResult(ctx context.Context, res execResult) {
	fields := map[string]interface{}{
		"symbol": res.intent.Symbol,
		"side":   res.intent.Side,
		"amount": res.intent.Amount,
	}
	if res.err != nil {
		s.metrics.IntentFinished(string(domain.IntentFailed))
		s.logger.Error(ctx, res.err, "Trade intent failed", fields)
		s.notify(ctx, domain.Alert{
			Message: fmt.Sprintf("Failed to execute %s order: %v", res.intent.Side, res.err),
			Type:    domain.AlertError,
		})
		return
	}

	s.metrics.IntentFinished(string(domain.IntentFilled))
	price := res.intent.Price
	if res.order != nil {
		fields["orderID"] = res.order.OrderID
		if res.order.AvgPrice > 0 {
			price = res.order.AvgPrice
		}
	}
	s.logger.Info(ctx, "Trade intent executed", fields)
	s.notify(ctx, domain.Alert{
		Message: fmt.Sprintf("%s order executed: %g %s at %.2f", res.intent.Side, res.intent.Amount, res.intent.Symbol, price),
		Type:    domain.AlertInfo,
	})
}
