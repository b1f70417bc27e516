package indicators

import "cryptoSignalBot/internal/domain"

// Series is a timestamp-keyed indicator output. Timestamps without a value
// are absent rather than zero.
type Series map[int64]float64

// Indicator computes a windowed value for every position of an ascending
// candle slice.
type Indicator interface {
	// CalculateFrom recomputes positions >= from into dst. Values for earlier
	// positions are left untouched; every window looks backwards only.
	CalculateFrom(dst Series, bars []domain.Bar, from int)

	// RequiredDataPoints returns the minimum number of candles for one value.
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of candles needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

// Calculate runs a full computation of ind over bars.
func Calculate(ind Indicator, bars []domain.Bar) Series {
	dst := make(Series)
	ind.CalculateFrom(dst, bars, 0)
	return dst
}

// clearFrom drops every value keyed at or after position from.
func clearFrom(dst Series, bars []domain.Bar, from int) {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(bars); i++ {
		delete(dst, bars[i].Timestamp)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
