package app

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/risk"
	"cryptoSignalBot/internal/strategy/indicators"
	"cryptoSignalBot/internal/strategy/patterns"
)

const (
	minuteMs = int64(60_000)
	dayMs    = int64(86_400_000)
)

// assertMatchesFull checks every cache against a from-scratch computation.
func assertMatchesFull(t *testing.T, e *Engine) {
	t.Helper()
	bars := e.series.Bars()
	require.Equal(t, bars, e.bars)

	for p, ma := range e.movingAverages {
		require.Equal(t, indicators.Calculate(ma, bars), e.ma[p], "MA-%d", p)
	}
	require.Equal(t, indicators.Calculate(e.rsi, bars), e.rsiVals)

	buy, sell := make(indicators.Series), make(indicators.Series)
	e.momentum.CalculateFrom(buy, sell, bars, 0)
	require.Equal(t, buy, e.momBuy)
	require.Equal(t, sell, e.momSell)

	if e.scoredEnabled {
		require.Equal(t, e.scorer.Score(bars), e.scored)
	}
}

func dailyCandles(closes []float64, volumes []float64) map[int64]domain.Candlestick {
	out := make(map[int64]domain.Candlestick, len(closes))
	for i, c := range closes {
		out[int64(i)*dayMs] = domain.Candlestick{Open: c, High: c, Low: c, Close: c, Volume: volumes[i]}
	}
	return out
}

func TestEngine_IncrementalMatchesFull(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	e := NewEngine(EngineConfig{Granularity: domain.Minute1, MaxCandles: 260, ScoredSignals: true})
	// A low threshold publishes single patterns so the maps are exercised.
	e.scorer = patterns.NewScorerWithConfig(patterns.ScorerConfig{MinLookback: patterns.MinLookback, PublishThreshold: 15})

	base := int64(1_700_000_040_000)
	next := int64(0)
	price := 100.0

	for step := 0; step < 1500; step++ {
		switch r := rng.Intn(100); {
		case r < 70:
			// Mostly trades into the newest buckets, sometimes a late one.
			bucket := next - int64(rng.Intn(3))
			if rng.Intn(20) == 0 {
				bucket = next - int64(rng.Intn(40))
			}
			if rng.Intn(4) == 0 {
				next++
				bucket = next
			}
			price += rng.Float64()*4 - 2
			e.Ingest(base+bucket*minuteMs+rng.Int63n(minuteMs), price, rng.Float64()*5)
		case r < 75:
			oldest, ok := e.OldestTimestamp()
			if !ok {
				continue
			}
			older := make(map[int64]domain.Candlestick)
			n := int64(rng.Intn(10))
			for i := int64(1); i <= n; i++ {
				p := 90 + rng.Float64()*20
				older[oldest-i*minuteMs] = domain.Candlestick{Open: p, High: p + 1, Low: p - 1, Close: p + rng.Float64() - 0.5, Volume: rng.Float64()}
			}
			e.MergeBackfill(older)
		case r < 77:
			e.Snapshot(domain.Market{Symbol: "BTCUSDT", Granularity: domain.Minute1}, false, time.Now())
			assert.LessOrEqual(t, e.Len(), 260)
		default:
			e.Recompute(true)
			assertMatchesFull(t, e)
		}
	}

	e.Recompute(false)
	assertMatchesFull(t, e)
	assert.Greater(t, len(e.ma[200]), 0)
}

func TestEngine_IngestTradeParsesDecimals(t *testing.T) {
	e := NewEngine(EngineConfig{Granularity: domain.Minute1})
	ts := int64(1_700_000_040_000)

	e.IngestTrade(domain.TradeEvent{Symbol: "BTCUSDT", Price: "100", Quantity: "1", Timestamp: ts})
	e.IngestTrade(domain.TradeEvent{Symbol: "BTCUSDT", Price: "105.5", Quantity: "2", Timestamp: ts + 1000})
	e.IngestTrade(domain.TradeEvent{Symbol: "BTCUSDT", Price: "oops", Quantity: "bad", Timestamp: ts + 2000})

	ev := e.Recompute(true)
	require.True(t, ev.HasCandle)
	c, ok := e.series.Get(ts)
	require.True(t, ok)
	assert.Equal(t, domain.Candlestick{Open: 100, High: 105.5, Low: 0, Close: 0, Volume: 3}, c)
}

func TestEngine_EmptyEvaluation(t *testing.T) {
	e := NewEngine(EngineConfig{Granularity: domain.Day})
	ev := e.Recompute(true)
	assert.False(t, ev.HasCandle)
	assert.Empty(t, ev.Signals)
}

func TestEngine_MomentumSignalOnlyOnLivePath(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 103}
	volumes := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 3}

	e := NewEngine(EngineConfig{Granularity: domain.Day})
	e.Replace(domain.Day, dailyCandles(closes, volumes))

	ev := e.Recompute(false)
	assert.True(t, ev.Full)
	assert.True(t, ev.Momentum.Buy)
	assert.Empty(t, ev.Signals)

	ev = e.Recompute(true)
	assert.False(t, ev.Full)
	require.Len(t, ev.Signals, 1)
	s := ev.Signals[0]
	assert.Equal(t, risk.SourceMomentum, s.Source)
	assert.Equal(t, domain.Buy, s.Side)
	assert.Equal(t, 103.0, s.Price)
	assert.InDelta(t, 1.0, s.Strength, 1e-9)
	assert.Equal(t, 10*dayMs, s.Timestamp)
	assert.InDelta(t, 3.0, s.Indicators.VolumeRatio, 1e-9)
	assert.InDelta(t, 100.6, s.Indicators.MA5, 1e-9)
	assert.Zero(t, s.Indicators.RSI, "RSI needs 15 candles")
}

func scoredEngine(t *testing.T) *Engine {
	t.Helper()
	closes := make([]float64, 21)
	volumes := make([]float64, 21)
	for i := range closes {
		closes[i], volumes[i] = 10, 1
	}
	candles := dailyCandles(closes, volumes)
	candles[21*dayMs] = domain.Candlestick{Open: 10, High: 10, Low: 8, Close: 8, Volume: 1}
	candles[22*dayMs] = domain.Candlestick{Open: 7, High: 12, Low: 7, Close: 12, Volume: 1}

	e := NewEngine(EngineConfig{Granularity: domain.Day, ScoredSignals: true})
	e.scorer = patterns.NewScorerWithConfig(patterns.ScorerConfig{MinLookback: patterns.MinLookback, PublishThreshold: 20})
	e.Replace(domain.Day, candles)
	return e
}

func TestEngine_ScoreSignalAtLatestCandle(t *testing.T) {
	e := scoredEngine(t)

	ev := e.Recompute(true)
	assert.InDelta(t, 25, ev.Buy.TotalScore, 1e-9)
	assert.Zero(t, ev.Sell.TotalScore)
	require.Len(t, ev.Signals, 1)
	assert.Equal(t, risk.SourceScore, ev.Signals[0].Source)
	assert.InDelta(t, 25, ev.Signals[0].Score, 1e-9)
	assert.InDelta(t, 0.25, ev.Signals[0].Strength, 1e-9)

	scored := e.ScoredSignals()
	assert.Len(t, scored.Buy, 1)
	scored.Buy[0] = domain.SignalScoring{}
	assert.Len(t, e.ScoredSignals().Buy, 1, "returned maps are copies")
}

func TestEngine_DefaultThresholdPublishesNothing(t *testing.T) {
	e := scoredEngine(t)
	e.scorer = patterns.NewScorer()

	ev := e.RecomputeFull(true)
	assert.Zero(t, ev.Buy.TotalScore)
	assert.Empty(t, ev.Signals)
}

func TestEngine_SetScoredSignals(t *testing.T) {
	e := scoredEngine(t)
	e.Recompute(false)
	require.Len(t, e.ScoredSignals().Buy, 1)

	e.SetScoredSignals(false)
	assert.False(t, e.ScoredSignalsEnabled())
	assert.Empty(t, e.ScoredSignals().Buy)
	e.Recompute(false)
	assert.Empty(t, e.ScoredSignals().Buy)

	e.SetScoredSignals(true)
	e.Recompute(false)
	assert.Len(t, e.ScoredSignals().Buy, 1)
}

func TestEngine_SnapshotEvictsAndCopies(t *testing.T) {
	e := NewEngine(EngineConfig{Granularity: domain.Minute1, MaxCandles: 30})
	base := int64(1_700_000_040_000)
	for i := int64(0); i < 50; i++ {
		e.Ingest(base+i*minuteMs, float64(100+i), 1)
	}
	e.Recompute(true)
	require.Equal(t, 50, e.Len())

	market := domain.Market{Symbol: "BTCUSDT", Granularity: domain.Minute1}
	now := time.Unix(1_700_000_000, 0)
	snap := e.Snapshot(market, true, now)

	assert.Equal(t, 30, e.Len())
	require.Len(t, snap.Bars, 30)
	assert.Equal(t, base+20*minuteMs, snap.Bars[0].Timestamp)
	assert.Len(t, snap.MA5, 26)
	assert.Len(t, snap.MA20, 11)
	assert.Empty(t, snap.MA200)
	assert.Len(t, snap.RSI, 16)
	assert.Equal(t, market, snap.Market)
	assert.True(t, snap.AutoTrading)
	assert.Equal(t, now, snap.TakenAt)
	assertMatchesFull(t, e)

	snap.MA5[0] = 1
	assert.NotContains(t, e.ma[5], int64(0))
}

func TestEngine_ReplaceSwitchesGranularity(t *testing.T) {
	e := NewEngine(EngineConfig{Granularity: domain.Minute1})
	e.Ingest(1_700_000_040_000, 100, 1)
	e.Recompute(true)

	closes := []float64{1, 2, 3, 4, 5, 6}
	e.Replace(domain.Day, dailyCandles(closes, []float64{1, 1, 1, 1, 1, 1}))
	ev := e.Recompute(false)

	assert.Equal(t, domain.Day, e.Granularity())
	assert.True(t, ev.Full)
	assert.Equal(t, 5*dayMs, ev.Timestamp)
	assert.Equal(t, indicators.MomentumConfigFor(domain.Day).Period, e.momentum.RequiredDataPoints()-1)
	assertMatchesFull(t, e)
}
