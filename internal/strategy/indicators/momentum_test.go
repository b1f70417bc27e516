package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/domain"
)

// momentumBars builds period+1 flat daily bars and lets the last bar move by
// pct percent on lastVolume.
func momentumBars(period int, pct, lastVolume float64) []domain.Bar {
	bars := barsFromCloses(make([]float64, period+1)...)
	for i := range bars {
		bars[i].Close = 100
		bars[i].Open = 100
	}
	bars[period].Close = 100 * (1 + pct/100)
	bars[period].Volume = lastVolume
	return bars
}

func TestMomentum_DayBuyStrengthIncreasesUntilCap(t *testing.T) {
	cfg := MomentumConfigFor(domain.Day)
	m := NewMomentum(cfg)
	period := cfg.Period

	moves := []float64{1.6, 2.0, 2.5, 2.9, 3.0, 5.0}
	prev := 0.0
	capped := false
	for _, pct := range moves {
		reading, ok := m.At(momentumBars(period, pct, 3), period)
		require.True(t, ok)
		require.True(t, reading.Buy, "move %.1f%% should fire", pct)
		assert.False(t, reading.Sell)
		assert.InDelta(t, 3.0, reading.VolumeRatio, 1e-9)

		s := reading.BuyStrength
		assert.Greater(t, s, 0.5)
		assert.LessOrEqual(t, s, 1.0)
		if capped {
			assert.InDelta(t, prev, s, 1e-9)
		} else {
			assert.Greater(t, s, prev)
		}
		if s >= 1.0-1e-9 {
			capped = true
		}
		prev = s
	}
	assert.True(t, capped)
}

func TestMomentum_Filters(t *testing.T) {
	cfg := MomentumConfigFor(domain.Day)
	m := NewMomentum(cfg)
	period := cfg.Period

	tests := []struct {
		name       string
		pct        float64
		volume     float64
		wantBuy    bool
		wantSell   bool
		wantSignal float64
	}{
		{"below momentum threshold", 1.0, 3, false, false, 0},
		{"below volume threshold", 4.0, 1.2, false, false, 0},
		{"sell side", -2.0, 3, false, true, 0.5 + 0.2 + 0.2},
		{"buy with small volume bonus", 2.0, 1.6, true, false, 0.5 + 0.2 + 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading, ok := m.At(momentumBars(period, tt.pct, tt.volume), period)
			require.True(t, ok)
			assert.Equal(t, tt.wantBuy, reading.Buy)
			assert.Equal(t, tt.wantSell, reading.Sell)
			assert.InDelta(t, tt.wantSignal, reading.Strength(), 1e-9)
		})
	}
}

func TestMomentum_InsufficientData(t *testing.T) {
	m := NewMomentum(MomentumConfigFor(domain.Minute1))
	buy, sell := make(Series), make(Series)
	m.CalculateFrom(buy, sell, barsFromCloses(1, 2, 3), 0)
	assert.Empty(t, buy)
	assert.Empty(t, sell)

	_, ok := m.At(barsFromCloses(1, 2, 3), 2)
	assert.False(t, ok)
	assert.Zero(t, m.VolumeRatio(barsFromCloses(1, 2, 3), 2))
}

func TestMomentum_CalculateFromSeries(t *testing.T) {
	cfg := MomentumConfigFor(domain.Day)
	m := NewMomentum(cfg)
	bars := momentumBars(cfg.Period, 2.0, 3)

	buy, sell := make(Series), make(Series)
	m.CalculateFrom(buy, sell, bars, 0)
	require.Len(t, buy, 1)
	assert.Empty(t, sell)
	assert.InDelta(t, 0.9, buy[bars[cfg.Period].Timestamp], 1e-9)

	// A later flat update at the same position withdraws the signal.
	bars[cfg.Period].Close = 100
	m.CalculateFrom(buy, sell, bars, cfg.Period)
	assert.Empty(t, buy)
}

func TestMomentumConfigFor(t *testing.T) {
	one := MomentumConfigFor(domain.Minute1)
	three := MomentumConfigFor(domain.Minute3)
	day := MomentumConfigFor(domain.Day)

	assert.NotEqual(t, one, three)
	assert.NotEqual(t, three, day)
	assert.Equal(t, 11, NewMomentum(day).RequiredDataPoints())
}
