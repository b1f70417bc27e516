package indicators

import (
	"cryptoSignalBot/internal/domain"
)

// RSIConfig holds configuration for the RSI indicator
type RSIConfig struct {
	IndicatorConfig
}

// RSI implements the Relative Strength Index over a simple (non-smoothed)
// average of gains and losses.
type RSI struct {
	BaseIndicator
}

// NewRSI creates a new RSI indicator instance
func NewRSI(config RSIConfig) *RSI {
	return &RSI{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
	}
}

// Name returns the name of the indicator
func (r *RSI) Name() string {
	return "RSI"
}

// RequiredDataPoints is one more than the period: period deltas need period+1 closes.
func (r *RSI) RequiredDataPoints() int {
	return r.Config.Period + 1
}

// CalculateFrom computes RSI at every position i >= period from the period
// deltas ending at i. An average loss of zero yields 100.
func (r *RSI) CalculateFrom(dst Series, bars []domain.Bar, from int) {
	clearFrom(dst, bars, from)
	period := r.Config.Period
	if period <= 0 || len(bars) < period+1 {
		return
	}

	for i := maxInt(from, period); i < len(bars); i++ {
		var gains, losses float64
		for j := i - period + 1; j <= i; j++ {
			change := bars[j].Close - bars[j-1].Close
			if change > 0 {
				gains += change
			} else {
				losses -= change
			}
		}
		avgGain := gains / float64(period)
		avgLoss := losses / float64(period)

		if avgLoss == 0 {
			dst[bars[i].Timestamp] = 100
			continue
		}
		rs := avgGain / avgLoss
		dst[bars[i].Timestamp] = 100 - (100 / (1 + rs))
	}
}
