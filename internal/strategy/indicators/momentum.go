package indicators

import (
	"math"

	"cryptoSignalBot/internal/domain"
)

// StrongMomentumStrength is the strength above which a momentum crossing at the
// latest candle is reported as a strong-momentum event.
const StrongMomentumStrength = 0.7

// MomentumConfig holds the lookback and the two filters of the momentum signal.
type MomentumConfig struct {
	IndicatorConfig
	MomentumThreshold float64 // Percent change over the period
	VolumeThreshold   float64 // Current volume relative to the period average
}

// MomentumConfigFor returns the fixed parameter triple for a granularity.
func MomentumConfigFor(g domain.Granularity) MomentumConfig {
	switch g {
	case domain.Minute1:
		return MomentumConfig{IndicatorConfig: IndicatorConfig{Period: 5}, MomentumThreshold: 0.3, VolumeThreshold: 1.1}
	case domain.Minute3:
		return MomentumConfig{IndicatorConfig: IndicatorConfig{Period: 7}, MomentumThreshold: 0.5, VolumeThreshold: 1.2}
	default:
		return MomentumConfig{IndicatorConfig: IndicatorConfig{Period: 10}, MomentumThreshold: 1.5, VolumeThreshold: 1.5}
	}
}

// MomentumReading is the momentum evaluation at one position.
type MomentumReading struct {
	Momentum     float64 // Percent change of close over the period
	VolumeRatio  float64
	Buy          bool
	Sell         bool
	BuyStrength  float64
	SellStrength float64
}

// Strength returns the strength of whichever side fired, or zero.
func (r MomentumReading) Strength() float64 {
	return math.Max(r.BuyStrength, r.SellStrength)
}

// Momentum detects price momentum confirmed by above-average volume.
type Momentum struct {
	BaseIndicator
	config MomentumConfig
}

// NewMomentum creates a new momentum indicator instance
func NewMomentum(config MomentumConfig) *Momentum {
	return &Momentum{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (m *Momentum) Name() string {
	return "Momentum"
}

// RequiredDataPoints is period+1: position i compares against i-period.
func (m *Momentum) RequiredDataPoints() int {
	return m.Config.Period + 1
}

// VolumeRatio returns volume[i]*period / sum(volume[i-period..i-1]).
// It is zero when the window is incomplete or carries no volume.
func (m *Momentum) VolumeRatio(bars []domain.Bar, i int) float64 {
	period := m.Config.Period
	if period <= 0 || i < period || i >= len(bars) {
		return 0
	}
	total := 0.0
	for j := i - period; j < i; j++ {
		total += bars[j].Volume
	}
	if total == 0 {
		return 0
	}
	return bars[i].Volume * float64(period) / total
}

// At evaluates momentum at position i. ok is false when i has no full
// lookback or the reference close is zero.
func (m *Momentum) At(bars []domain.Bar, i int) (reading MomentumReading, ok bool) {
	period := m.Config.Period
	if period <= 0 || i < period || i >= len(bars) {
		return MomentumReading{}, false
	}
	past := bars[i-period].Close
	if past == 0 {
		return MomentumReading{}, false
	}

	reading.Momentum = (bars[i].Close - past) / past * 100
	reading.VolumeRatio = m.VolumeRatio(bars, i)

	if reading.VolumeRatio > m.config.VolumeThreshold {
		if reading.Momentum > m.config.MomentumThreshold {
			reading.Buy = true
			reading.BuyStrength = signalStrength(reading.Momentum, reading.VolumeRatio)
		}
		if reading.Momentum < -m.config.MomentumThreshold {
			reading.Sell = true
			reading.SellStrength = signalStrength(-reading.Momentum, reading.VolumeRatio)
		}
	}
	return reading, true
}

// CalculateFrom fills the buy and sell strength series for positions >= from.
func (m *Momentum) CalculateFrom(buy, sell Series, bars []domain.Bar, from int) {
	clearFrom(buy, bars, from)
	clearFrom(sell, bars, from)
	for i := maxInt(from, m.Config.Period); i < len(bars); i++ {
		reading, ok := m.At(bars, i)
		if !ok {
			continue
		}
		if reading.Buy {
			buy[bars[i].Timestamp] = reading.BuyStrength
		}
		if reading.Sell {
			sell[bars[i].Timestamp] = reading.SellStrength
		}
	}
}

// signalStrength starts at 0.5, adds up to 0.3 for momentum magnitude and up
// to 0.2 for volume above 1.2x, capped at 1.0.
func signalStrength(magnitude, volumeRatio float64) float64 {
	strength := 0.5
	strength += math.Min(magnitude/10, 0.3)
	if volumeRatio > 1.2 {
		strength += math.Min((volumeRatio-1.2)/2, 0.2)
	}
	return math.Min(strength, 1.0)
}
