package app

import (
	"time"

	"github.com/shopspring/decimal"

	"cryptoSignalBot/internal/candles"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/risk"
	"cryptoSignalBot/internal/strategy/indicators"
	"cryptoSignalBot/internal/strategy/patterns"
)

// MovingAveragePeriods are the moving averages kept for the chart.
var MovingAveragePeriods = []int{5, 10, 20, 200}

// RSIPeriod is the RSI lookback.
const RSIPeriod = 14

// EngineConfig holds configuration for the aggregation engine.
type EngineConfig struct {
	Granularity   domain.Granularity
	MaxCandles    int  // Retained candles after a snapshot; defaults to candles.DefaultMaxLen
	ScoredSignals bool // Pattern scoring on/off
}

// Evaluation is what a recomputation found at the latest candle.
type Evaluation struct {
	HasCandle  bool
	Timestamp  int64
	Close      float64
	Full       bool // Caches were rebuilt from scratch
	Live       bool
	Buy        domain.SignalScoring // Published buy scoring at Timestamp, zero if none
	Sell       domain.SignalScoring
	Momentum   indicators.MomentumReading
	Indicators domain.TradeIndicators
	Signals    []risk.Signal
}

// Engine owns a candle series and every value derived from it. It is not
// safe for concurrent use; one goroutine drives it.
type Engine struct {
	series        *candles.Series
	maxCandles    int
	scoredEnabled bool

	movingAverages map[int]*indicators.MovingAverage
	rsi            *indicators.RSI
	momentum       *indicators.Momentum
	scorer         *patterns.Scorer

	bars     []domain.Bar
	ma       map[int]indicators.Series
	rsiVals  indicators.Series
	momBuy   indicators.Series
	momSell  indicators.Series
	scored   patterns.ScoredSignals
	invalid  bool // Forces the next recompute to start from scratch
	lastFull bool
}

// NewEngine creates an engine with an empty series.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.MaxCandles <= 0 {
		cfg.MaxCandles = candles.DefaultMaxLen
	}
	e := &Engine{
		series:         candles.NewSeries(cfg.Granularity),
		maxCandles:     cfg.MaxCandles,
		scoredEnabled:  cfg.ScoredSignals,
		movingAverages: make(map[int]*indicators.MovingAverage, len(MovingAveragePeriods)),
		rsi:            indicators.NewRSI(indicators.RSIConfig{IndicatorConfig: indicators.IndicatorConfig{Period: RSIPeriod}}),
		momentum:       indicators.NewMomentum(indicators.MomentumConfigFor(cfg.Granularity)),
		scorer:         patterns.NewScorer(),
	}
	for _, p := range MovingAveragePeriods {
		e.movingAverages[p] = indicators.NewMovingAverage(indicators.MovingAverageConfig{IndicatorConfig: indicators.IndicatorConfig{Period: p}})
	}
	e.resetCaches()
	return e
}

// Granularity returns the bucket width of the series.
func (e *Engine) Granularity() domain.Granularity { return e.series.Granularity() }

// Len returns the number of retained candles.
func (e *Engine) Len() int { return e.series.Len() }

// OldestTimestamp returns the oldest bucket key, used to page backfills.
func (e *Engine) OldestTimestamp() (int64, bool) { return e.series.OldestTimestamp() }

// LatestTimestamp returns the newest bucket key.
func (e *Engine) LatestTimestamp() (int64, bool) { return e.series.LatestTimestamp() }

// IngestTrade parses a trade event and folds it into its bucket. Malformed
// price or quantity strings count as zero.
func (e *Engine) IngestTrade(ev domain.TradeEvent) int64 {
	return e.Ingest(ev.Timestamp, parseDecimal(ev.Price), parseDecimal(ev.Quantity))
}

// Ingest folds one trade into its bucket and returns the bucket key.
func (e *Engine) Ingest(timestamp int64, price, volume float64) int64 {
	return e.series.Ingest(timestamp, price, volume)
}

// Replace swaps in a freshly fetched series, possibly at a new granularity.
func (e *Engine) Replace(g domain.Granularity, fresh map[int64]domain.Candlestick) {
	if g != e.series.Granularity() {
		e.momentum = indicators.NewMomentum(indicators.MomentumConfigFor(g))
	}
	e.series.Replace(g, fresh)
}

// MergeBackfill prepends candles older than the current oldest one.
func (e *Engine) MergeBackfill(older map[int64]domain.Candlestick) int {
	return e.series.MergeBackfill(older)
}

// SetScoredSignals turns pattern scoring on or off. Turning it off clears
// both published maps.
func (e *Engine) SetScoredSignals(enabled bool) {
	if enabled == e.scoredEnabled {
		return
	}
	e.scoredEnabled = enabled
	e.scored = patterns.NewScoredSignals()
	if enabled {
		e.invalid = true
	}
}

// ScoredSignalsEnabled reports whether pattern scoring runs.
func (e *Engine) ScoredSignalsEnabled() bool { return e.scoredEnabled }

// Recompute brings every derived series up to date with the candle series and
// evaluates the latest candle. live marks the trade-stream path; only then are
// momentum crossings reported as signals.
func (e *Engine) Recompute(live bool) Evaluation {
	e.refresh()
	return e.evaluate(live)
}

// RecomputeFull discards the caches and rebuilds them from scratch.
func (e *Engine) RecomputeFull(live bool) Evaluation {
	e.invalid = true
	return e.Recompute(live)
}

func (e *Engine) refresh() {
	change, dirty := e.series.TakeChange()
	e.lastFull = false
	if !dirty && !e.invalid {
		return
	}

	from := 0
	if e.invalid || change.Full {
		e.resetCaches()
		e.bars = e.series.Bars()
		e.lastFull = true
	} else {
		from = e.series.IndexOf(change.From)
		if from > len(e.bars) {
			from = len(e.bars)
		}
		e.bars = append(e.bars[:from], e.series.BarsFrom(from)...)
	}
	e.invalid = false

	for p, ma := range e.movingAverages {
		ma.CalculateFrom(e.ma[p], e.bars, from)
	}
	e.rsi.CalculateFrom(e.rsiVals, e.bars, from)
	e.momentum.CalculateFrom(e.momBuy, e.momSell, e.bars, from)
	if e.scoredEnabled {
		e.scorer.ScoreFrom(e.scored, e.bars, from)
	}
}

func (e *Engine) resetCaches() {
	e.ma = make(map[int]indicators.Series, len(MovingAveragePeriods))
	for _, p := range MovingAveragePeriods {
		e.ma[p] = make(indicators.Series)
	}
	e.rsiVals = make(indicators.Series)
	e.momBuy = make(indicators.Series)
	e.momSell = make(indicators.Series)
	e.scored = patterns.NewScoredSignals()
}

func (e *Engine) evaluate(live bool) Evaluation {
	ev := Evaluation{Full: e.lastFull, Live: live}
	n := len(e.bars)
	if n == 0 {
		return ev
	}
	last := e.bars[n-1]
	ev.HasCandle = true
	ev.Timestamp = last.Timestamp
	ev.Close = last.Close
	ev.Buy = e.scored.Buy[last.Timestamp]
	ev.Sell = e.scored.Sell[last.Timestamp]
	ev.Indicators = domain.TradeIndicators{
		RSI:         e.rsiVals[last.Timestamp],
		MA5:         e.ma[5][last.Timestamp],
		MA20:        e.ma[20][last.Timestamp],
		VolumeRatio: e.momentum.VolumeRatio(e.bars, n-1),
	}
	ev.Momentum, _ = e.momentum.At(e.bars, n-1)

	signal := func(src risk.SignalSource, side domain.OrderSide, score, strength float64) risk.Signal {
		return risk.Signal{
			Source:     src,
			Side:       side,
			Price:      last.Close,
			Score:      score,
			Strength:   strength,
			Timestamp:  last.Timestamp,
			Indicators: ev.Indicators,
		}
	}
	if ev.Buy.TotalScore > 0 {
		ev.Signals = append(ev.Signals, signal(risk.SourceScore, domain.Buy, ev.Buy.TotalScore, ev.Buy.TotalScore/100))
	}
	if ev.Sell.TotalScore > 0 {
		ev.Signals = append(ev.Signals, signal(risk.SourceScore, domain.Sell, ev.Sell.TotalScore, ev.Sell.TotalScore/100))
	}
	if live && ev.Momentum.Buy {
		ev.Signals = append(ev.Signals, signal(risk.SourceMomentum, domain.Buy, 0, ev.Momentum.BuyStrength))
	}
	if live && ev.Momentum.Sell {
		ev.Signals = append(ev.Signals, signal(risk.SourceMomentum, domain.Sell, 0, ev.Momentum.SellStrength))
	}
	return ev
}

// ScoredSignals returns a copy of the published buy and sell maps.
func (e *Engine) ScoredSignals() patterns.ScoredSignals {
	return e.scored.Clone()
}

// Snapshot enforces the capacity bound, brings the caches up to date and
// returns a read-only copy for the presentation side.
func (e *Engine) Snapshot(market domain.Market, autoTrading bool, now time.Time) ports.Snapshot {
	e.series.EvictOldest(e.maxCandles)
	e.refresh()

	scored := e.scored.Clone()
	return ports.Snapshot{
		Market:       market,
		Bars:         append([]domain.Bar(nil), e.bars...),
		MA5:          copySeries(e.ma[5]),
		MA10:         copySeries(e.ma[10]),
		MA20:         copySeries(e.ma[20]),
		MA200:        copySeries(e.ma[200]),
		RSI:          copySeries(e.rsiVals),
		MomentumBuy:  copySeries(e.momBuy),
		MomentumSell: copySeries(e.momSell),
		BuySignals:   scored.Buy,
		SellSignals:  scored.Sell,
		AutoTrading:  autoTrading,
		TakenAt:      now,
	}
}

func copySeries(s indicators.Series) map[int64]float64 {
	out := make(map[int64]float64, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// parseDecimal parses an exchange decimal string. Malformed input yields 0.
func parseDecimal(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
