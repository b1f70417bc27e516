package patterns

import (
	"cryptoSignalBot/internal/domain"
)

const (
	// MinLookback is the first index scored; earlier candles only feed detectors.
	MinLookback = 20
	// PublishThreshold is the total a timestamp needs to enter a scored map.
	PublishThreshold = 70.0
)

// ScoredSignals holds the published buy and sell scores keyed by bucket start.
type ScoredSignals struct {
	Buy  map[int64]domain.SignalScoring
	Sell map[int64]domain.SignalScoring
}

// NewScoredSignals returns empty buy and sell maps.
func NewScoredSignals() ScoredSignals {
	return ScoredSignals{
		Buy:  make(map[int64]domain.SignalScoring),
		Sell: make(map[int64]domain.SignalScoring),
	}
}

// Clone returns a deep copy safe to hand to readers outside the update loop.
func (s ScoredSignals) Clone() ScoredSignals {
	out := ScoredSignals{
		Buy:  make(map[int64]domain.SignalScoring, len(s.Buy)),
		Sell: make(map[int64]domain.SignalScoring, len(s.Sell)),
	}
	for k, v := range s.Buy {
		out.Buy[k] = v
	}
	for k, v := range s.Sell {
		out.Sell[k] = v
	}
	return out
}

// Scorer combines the detectors into buy and sell totals.
type Scorer struct {
	minLookback int
	threshold   float64
}

// ScorerConfig holds configuration for the scorer
type ScorerConfig struct {
	MinLookback      int
	PublishThreshold float64
}

// NewScorer creates a scorer with the default lookback and publish threshold.
func NewScorer() *Scorer {
	return NewScorerWithConfig(ScorerConfig{MinLookback: MinLookback, PublishThreshold: PublishThreshold})
}

// NewScorerWithConfig creates a scorer with explicit parameters.
func NewScorerWithConfig(cfg ScorerConfig) *Scorer {
	if cfg.MinLookback < 2 {
		cfg.MinLookback = 2
	}
	return &Scorer{minLookback: cfg.MinLookback, threshold: cfg.PublishThreshold}
}

// ScoreAt returns the buy and sell scorings of position i regardless of the
// publish threshold. Positions below the lookback score zero.
func (s *Scorer) ScoreAt(bars []domain.Bar, i int) (buy, sell domain.SignalScoring) {
	if i < s.minLookback || i >= len(bars) {
		return buy, sell
	}

	buy.BullishEngulfing = BullishEngulfing(bars, i)
	buy.MorningStar = MorningStar(bars, i)
	buy.TotalScore = buy.BullishEngulfing + buy.MorningStar

	sell.BearishEngulfing = BearishEngulfing(bars, i)
	sell.EveningStar = EveningStar(bars, i)
	sell.TotalScore = sell.BearishEngulfing + sell.EveningStar
	return buy, sell
}

// ScoreFrom recomputes the published maps for every position >= from. Entries
// for earlier positions are left untouched since detectors only look back.
func (s *Scorer) ScoreFrom(out ScoredSignals, bars []domain.Bar, from int) {
	if from < 0 {
		from = 0
	}
	if from < len(bars) {
		cutoff := bars[from].Timestamp
		for ts := range out.Buy {
			if ts >= cutoff {
				delete(out.Buy, ts)
			}
		}
		for ts := range out.Sell {
			if ts >= cutoff {
				delete(out.Sell, ts)
			}
		}
	}

	start := from
	if start < s.minLookback {
		start = s.minLookback
	}
	for i := start; i < len(bars); i++ {
		buy, sell := s.ScoreAt(bars, i)
		ts := bars[i].Timestamp
		if buy.TotalScore >= s.threshold {
			out.Buy[ts] = buy
		}
		if sell.TotalScore >= s.threshold {
			out.Sell[ts] = sell
		}
	}
}

// Score computes the published maps over the whole series.
func (s *Scorer) Score(bars []domain.Bar) ScoredSignals {
	out := NewScoredSignals()
	s.ScoreFrom(out, bars, 0)
	return out
}
