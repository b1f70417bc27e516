package patterns

import (
	"math"

	"cryptoSignalBot/internal/domain"
)

const (
	maxSubScore     = 25.0
	baseScore       = 15.0
	minBody         = 0.0001
	strongBodyRatio = 0.6 // body / range for a strong candle
	smallBodyRatio  = 0.3 // star body / first body
	maxStarStrength = 1.5
)

// BullishEngulfing scores a bearish candle followed by a bullish candle whose
// body covers the previous open/close range.
func BullishEngulfing(bars []domain.Bar, i int) float64 {
	if i < 1 || i >= len(bars) {
		return 0
	}
	prev, curr := bars[i-1].Candlestick, bars[i].Candlestick

	if !prev.IsBearish() || !curr.IsBullish() {
		return 0
	}
	if curr.Open > prev.Close || curr.Close < prev.Open {
		return 0
	}
	return engulfingScore(curr.Body(), prev.Body())
}

// BearishEngulfing mirrors BullishEngulfing for a bullish-then-bearish pair.
func BearishEngulfing(bars []domain.Bar, i int) float64 {
	if i < 1 || i >= len(bars) {
		return 0
	}
	prev, curr := bars[i-1].Candlestick, bars[i].Candlestick

	if !prev.IsBullish() || !curr.IsBearish() {
		return 0
	}
	if curr.Open < prev.Close || curr.Close > prev.Open {
		return 0
	}
	return engulfingScore(curr.Body(), prev.Body())
}

func engulfingScore(currBody, prevBody float64) float64 {
	sizeRatio := currBody / math.Max(prevBody, minBody)
	return math.Min(baseScore+math.Min(sizeRatio-1, 1)*10, maxSubScore)
}

// MorningStar scores a strong bearish candle, a small candle gapping below it,
// and a strong bullish candle gapping up that closes above the first body's midpoint.
func MorningStar(bars []domain.Bar, i int) float64 {
	if i < 2 || i >= len(bars) {
		return 0
	}
	first, middle, last := bars[i-2].Candlestick, bars[i-1].Candlestick, bars[i].Candlestick

	firstBody := first.Body()
	lastBody := last.Body()

	switch {
	case !first.IsBearish() || !isStrong(first):
		return 0
	case middle.Body() >= firstBody*smallBodyRatio || middle.High >= first.Close:
		return 0
	case !last.IsBullish() || !isStrong(last) || last.Low <= middle.High:
		return 0
	case last.Close <= (first.Open+first.Close)/2:
		return 0
	}
	return starScore(lastBody, firstBody)
}

// EveningStar mirrors MorningStar: strong bullish, small gap-up candle, strong
// bearish gap-down candle closing below the first body's midpoint.
func EveningStar(bars []domain.Bar, i int) float64 {
	if i < 2 || i >= len(bars) {
		return 0
	}
	first, middle, last := bars[i-2].Candlestick, bars[i-1].Candlestick, bars[i].Candlestick

	firstBody := first.Body()
	lastBody := last.Body()

	switch {
	case !first.IsBullish() || !isStrong(first):
		return 0
	case middle.Body() >= firstBody*smallBodyRatio || middle.Low <= first.Close:
		return 0
	case !last.IsBearish() || !isStrong(last) || last.High >= middle.Low:
		return 0
	case last.Close >= (first.Open+first.Close)/2:
		return 0
	}
	return starScore(lastBody, firstBody)
}

func isStrong(c domain.Candlestick) bool {
	return c.Body() > c.Range()*strongBodyRatio
}

func starScore(lastBody, firstBody float64) float64 {
	strength := math.Min(lastBody/firstBody, maxStarStrength)
	return math.Min(baseScore+strength*10, maxSubScore)
}
