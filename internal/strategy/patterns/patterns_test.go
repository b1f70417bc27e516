package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/domain"
)

const dayMs = int64(86_400_000)

func candle(o, h, l, c float64) domain.Candlestick {
	return domain.Candlestick{Open: o, High: h, Low: l, Close: c, Volume: 1}
}

func toBars(candles ...domain.Candlestick) []domain.Bar {
	bars := make([]domain.Bar, len(candles))
	for i, c := range candles {
		bars[i] = domain.Bar{Timestamp: int64(i) * dayMs, Candlestick: c}
	}
	return bars
}

// flatBars returns n doji candles at 100 followed by tail.
func flatBars(n int, tail ...domain.Candlestick) []domain.Bar {
	candles := make([]domain.Candlestick, 0, n+len(tail))
	for i := 0; i < n; i++ {
		candles = append(candles, candle(100, 100, 100, 100))
	}
	return toBars(append(candles, tail...)...)
}

func TestEngulfing(t *testing.T) {
	tests := []struct {
		name        string
		prev, curr  domain.Candlestick
		wantBullish float64
		wantBearish float64
	}{
		{"bullish full engulf", candle(10, 10, 8, 8), candle(7, 12, 7, 12), 25, 0},
		{"bullish small ratio", candle(10, 10, 8, 8), candle(8, 10.5, 8, 10.5), 17.5, 0},
		{"bullish open above prev close", candle(10, 10, 8, 8), candle(9, 12, 9, 12), 0, 0},
		{"bearish full engulf", candle(8, 10, 8, 10), candle(11, 11, 6, 6), 0, 25},
		{"bearish close above prev open", candle(8, 10, 8, 10), candle(11, 11, 9, 9), 0, 0},
		{"same direction", candle(8, 10, 8, 10), candle(7, 12, 7, 12), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := toBars(tt.prev, tt.curr)
			assert.InDelta(t, tt.wantBullish, BullishEngulfing(bars, 1), 1e-9)
			assert.InDelta(t, tt.wantBearish, BearishEngulfing(bars, 1), 1e-9)
		})
	}
}

func TestEngulfing_ScoreRange(t *testing.T) {
	bars := toBars(candle(10, 10, 8, 8), candle(7, 12, 7, 12))
	score := BullishEngulfing(bars, 1)
	assert.GreaterOrEqual(t, score, 15.0)
	assert.LessOrEqual(t, score, 25.0)

	assert.Zero(t, BullishEngulfing(bars, 0))
	assert.Zero(t, BearishEngulfing(bars, 5))
}

func TestEngulfing_ZeroPreviousBody(t *testing.T) {
	// A doji has no direction so it never qualifies as the first candle.
	bars := toBars(candle(10, 10, 10, 10), candle(9, 12, 9, 12))
	assert.Zero(t, BullishEngulfing(bars, 1))
}

func TestMorningStar(t *testing.T) {
	first := candle(100, 101, 89, 90)
	middle := candle(87, 88, 86, 87.5)
	last := candle(89, 97, 88.5, 96.5)

	assert.InDelta(t, 22.5, MorningStar(toBars(first, middle, last), 2), 1e-9)

	// Middle does not gap below the first close.
	assert.Zero(t, MorningStar(toBars(first, candle(90, 91, 89, 90.5), last), 2))
	// Last close stays below the first body's midpoint.
	assert.Zero(t, MorningStar(toBars(first, middle, candle(89, 94.5, 88.5, 94)), 2))
	// Weak first candle.
	assert.Zero(t, MorningStar(toBars(candle(100, 110, 80, 90), middle, last), 2))
	assert.Zero(t, MorningStar(toBars(first, middle), 1))
}

func TestEveningStar(t *testing.T) {
	first := candle(90, 101, 89, 100)
	middle := candle(103, 104, 102, 102.5)
	last := candle(101, 101.5, 93, 93.5)

	assert.InDelta(t, 22.5, EveningStar(toBars(first, middle, last), 2), 1e-9)

	// Last candle overlaps the star.
	assert.Zero(t, EveningStar(toBars(first, middle, candle(103, 103.5, 95, 95.5)), 2))
	// Large middle body.
	assert.Zero(t, EveningStar(toBars(first, candle(102, 107, 101.5, 106), last), 2))
}

func TestStarScoreCapped(t *testing.T) {
	first := candle(100, 101, 89, 90)
	middle := candle(87, 88, 86, 87.5)
	last := candle(89, 110, 88.5, 109)

	assert.InDelta(t, 25, MorningStar(toBars(first, middle, last), 2), 1e-9)
}

func TestScorer_ScoreAtRespectsLookback(t *testing.T) {
	s := NewScorer()
	tail := []domain.Candlestick{candle(10, 10, 8, 8), candle(7, 12, 7, 12)}

	short := toBars(tail...)
	buy, sell := s.ScoreAt(short, 1)
	assert.Zero(t, buy.TotalScore)
	assert.Zero(t, sell.TotalScore)

	long := flatBars(MinLookback, tail...)
	buy, sell = s.ScoreAt(long, len(long)-1)
	assert.InDelta(t, 25, buy.BullishEngulfing, 1e-9)
	assert.InDelta(t, 25, buy.TotalScore, 1e-9)
	assert.Zero(t, sell.TotalScore)
}

func TestScorer_PublishThreshold(t *testing.T) {
	bars := flatBars(MinLookback, candle(10, 10, 8, 8), candle(7, 12, 7, 12))

	// A single pattern tops out at 25, below the publish threshold.
	scored := NewScorer().Score(bars)
	assert.Empty(t, scored.Buy)
	assert.Empty(t, scored.Sell)

	low := &Scorer{minLookback: MinLookback, threshold: 20}
	scored = low.Score(bars)
	require.Len(t, scored.Buy, 1)
	assert.InDelta(t, 25, scored.Buy[bars[len(bars)-1].Timestamp].TotalScore, 1e-9)
	assert.Empty(t, scored.Sell)
}

func TestScorer_ScoreFromMatchesFull(t *testing.T) {
	s := &Scorer{minLookback: MinLookback, threshold: 20}
	bars := flatBars(MinLookback,
		candle(10, 10, 8, 8), candle(7, 12, 7, 12),
		candle(8, 10, 8, 10), candle(11, 11, 6, 6),
	)

	incremental := s.Score(bars)
	require.Len(t, incremental.Buy, 1)
	require.Len(t, incremental.Sell, 1)

	// The final candle turns into a doji, which withdraws the sell entry.
	last := len(bars) - 1
	bars[last].Candlestick = candle(10, 10, 10, 10)
	s.ScoreFrom(incremental, bars, last)

	full := s.Score(bars)
	assert.Equal(t, full, incremental)
	assert.Len(t, incremental.Buy, 1)
	assert.Empty(t, incremental.Sell)
}

func TestScoredSignals_Clone(t *testing.T) {
	orig := NewScoredSignals()
	orig.Buy[1] = domain.SignalScoring{TotalScore: 80}

	clone := orig.Clone()
	clone.Buy[2] = domain.SignalScoring{TotalScore: 90}
	assert.Len(t, orig.Buy, 1)
	assert.Len(t, clone.Buy, 2)
}
