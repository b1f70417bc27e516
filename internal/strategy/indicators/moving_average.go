package indicators

import (
	"fmt"

	"cryptoSignalBot/internal/domain"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
}

// MovingAverage implements the simple moving average of close prices.
type MovingAverage struct {
	BaseIndicator
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
	}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return fmt.Sprintf("MA-%d", m.Config.Period)
}

// CalculateFrom writes MA[i] = mean(close[i-p+1..i]) for i >= max(from, p-1).
// Positions without a full window get no value.
func (m *MovingAverage) CalculateFrom(dst Series, bars []domain.Bar, from int) {
	clearFrom(dst, bars, from)
	period := m.Config.Period
	if period <= 0 || len(bars) < period {
		return
	}

	for i := maxInt(from, period-1); i < len(bars); i++ {
		total := 0.0
		for j := i + 1 - period; j <= i; j++ {
			total += bars[j].Close
		}
		dst[bars[i].Timestamp] = total / float64(period)
	}
}
