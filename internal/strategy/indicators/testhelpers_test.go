package indicators

import "cryptoSignalBot/internal/domain"

const dayMs = int64(86_400_000)

// barsFromCloses builds daily bars with the given closes and unit volume.
func barsFromCloses(closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Timestamp:   int64(i) * dayMs,
			Candlestick: domain.Candlestick{Open: c, High: c, Low: c, Close: c, Volume: 1},
		}
	}
	return bars
}

func almostEqual(a, b float64) bool {
	d := a - b
	return d < 0.0001 && d > -0.0001
}
