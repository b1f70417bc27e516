package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// Metrics holds the Prometheus collectors of the signal engine. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TradesTotal       prometheus.Counter
	TradesRejected    prometheus.Counter
	RecomputeDuration *prometheus.HistogramVec // labels: mode=full|incremental
	AlertsTotal       *prometheus.CounterVec   // labels: type
	IntentsTotal      *prometheus.CounterVec   // labels: status=filled|failed|dropped
	BackfillsTotal    *prometheus.CounterVec   // labels: result=ok|empty|error
	StreamErrors      prometheus.Counter

	// Chart gauges, labelled by symbol and interval
	CandleCount   *prometheus.GaugeVec
	LastCandle    *prometheus.GaugeVec // extra label: field
	MovingAverage *prometheus.GaugeVec // extra label: period
	RSI           *prometheus.GaugeVec
	Momentum      *prometheus.GaugeVec // extra label: side
	ScoredSignals *prometheus.GaugeVec // extra label: side
	AutoTrading   prometheus.Gauge

	mu         sync.Mutex
	lastMarket domain.Market
	hasMarket  bool
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	market := []string{"symbol", "interval"}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_trades_total",
			Help: "Total trades folded into candles",
		}),
		TradesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_trades_rejected_total",
			Help: "Trades dropped before ingest (other symbol)",
		}),
		RecomputeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalbot_recompute_duration_seconds",
			Help:    "Indicator and pattern recomputation latency",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"mode"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_alerts_total",
			Help: "Alerts raised by type",
		}, []string{"type"}),
		IntentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_trade_intents_total",
			Help: "Trade intents by outcome",
		}, []string{"status"}),
		BackfillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_backfills_total",
			Help: "Backfill requests by result",
		}, []string{"result"}),
		StreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_stream_errors_total",
			Help: "Errors reported by the trade stream",
		}),
		CandleCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalbot_chart_candles",
			Help: "Candles retained in the series",
		}, market),
		LastCandle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalbot_chart_last_candle",
			Help: "OHLCV of the latest candle",
		}, append(market, "field")),
		MovingAverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalbot_chart_moving_average",
			Help: "Latest moving average by period",
		}, append(market, "period")),
		RSI: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalbot_chart_rsi",
			Help: "Latest RSI-14",
		}, market),
		Momentum: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalbot_chart_momentum_strength",
			Help: "Momentum signal strength at the latest candle, 0 when no signal",
		}, append(market, "side")),
		ScoredSignals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalbot_chart_scored_signals",
			Help: "Published scored signals in the retained window",
		}, append(market, "side")),
		AutoTrading: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_auto_trading_enabled",
			Help: "1 when automatic trading is on",
		}),
	}

	m.registry.MustRegister(
		m.TradesTotal, m.TradesRejected, m.RecomputeDuration, m.AlertsTotal,
		m.IntentsTotal, m.BackfillsTotal, m.StreamErrors,
		m.CandleCount, m.LastCandle, m.MovingAverage, m.RSI, m.Momentum,
		m.ScoredSignals, m.AutoTrading,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TradeIngested counts a trade folded into the series.
func (m *Metrics) TradeIngested() {
	if m == nil {
		return
	}
	m.TradesTotal.Inc()
}

// TradeRejected counts a trade for a symbol other than the current one.
func (m *Metrics) TradeRejected() {
	if m == nil {
		return
	}
	m.TradesRejected.Inc()
}

// ObserveRecompute records one recomputation pass.
func (m *Metrics) ObserveRecompute(full bool, d time.Duration) {
	if m == nil {
		return
	}
	mode := "incremental"
	if full {
		mode = "full"
	}
	m.RecomputeDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// AlertRaised counts an alert by type.
func (m *Metrics) AlertRaised(t domain.AlertType) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(string(t)).Inc()
}

// IntentFinished counts a trade intent by final status.
func (m *Metrics) IntentFinished(status string) {
	if m == nil {
		return
	}
	m.IntentsTotal.WithLabelValues(status).Inc()
}

// BackfillFinished counts a backfill page by result.
func (m *Metrics) BackfillFinished(result string) {
	if m == nil {
		return
	}
	m.BackfillsTotal.WithLabelValues(result).Inc()
}

// StreamError counts a trade stream failure.
func (m *Metrics) StreamError() {
	if m == nil {
		return
	}
	m.StreamErrors.Inc()
}

// Render implements ports.ChartSink by exporting the latest values of the
// snapshot as gauges.
func (m *Metrics) Render(ctx context.Context, s ports.Snapshot) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasMarket && m.lastMarket != s.Market {
		m.resetChart()
	}
	m.lastMarket, m.hasMarket = s.Market, true

	symbol, interval := s.Market.Symbol, s.Market.Granularity.String()
	m.CandleCount.WithLabelValues(symbol, interval).Set(float64(len(s.Bars)))
	if s.AutoTrading {
		m.AutoTrading.Set(1)
	} else {
		m.AutoTrading.Set(0)
	}
	m.ScoredSignals.WithLabelValues(symbol, interval, "buy").Set(float64(len(s.BuySignals)))
	m.ScoredSignals.WithLabelValues(symbol, interval, "sell").Set(float64(len(s.SellSignals)))

	if len(s.Bars) == 0 {
		return nil
	}
	last := s.Bars[len(s.Bars)-1]
	for field, v := range map[string]float64{
		"open": last.Open, "high": last.High, "low": last.Low, "close": last.Close, "volume": last.Volume,
	} {
		m.LastCandle.WithLabelValues(symbol, interval, field).Set(v)
	}

	for period, series := range map[int]map[int64]float64{5: s.MA5, 10: s.MA10, 20: s.MA20, 200: s.MA200} {
		if v, ok := series[last.Timestamp]; ok {
			m.MovingAverage.WithLabelValues(symbol, interval, strconv.Itoa(period)).Set(v)
		}
	}
	if v, ok := s.RSI[last.Timestamp]; ok {
		m.RSI.WithLabelValues(symbol, interval).Set(v)
	}
	m.Momentum.WithLabelValues(symbol, interval, "buy").Set(s.MomentumBuy[last.Timestamp])
	m.Momentum.WithLabelValues(symbol, interval, "sell").Set(s.MomentumSell[last.Timestamp])
	return nil
}

func (m *Metrics) resetChart() {
	m.CandleCount.Reset()
	m.LastCandle.Reset()
	m.MovingAverage.Reset()
	m.RSI.Reset()
	m.Momentum.Reset()
	m.ScoredSignals.Reset()
}

// Server exposes /metrics and /healthz over HTTP.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server for the registry of m.
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
