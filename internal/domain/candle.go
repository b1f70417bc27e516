package domain

import (
	"errors"
	"time"
)

// ErrInvalidGranularity is returned when a granularity string is not recognised.
var ErrInvalidGranularity = errors.New("invalid granularity")

// Candlestick is an OHLCV aggregate over one bucket.
type Candlestick struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Body returns the absolute size of the candle body.
func (c Candlestick) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns high minus low.
func (c Candlestick) Range() float64 {
	return c.High - c.Low
}

// IsBullish reports whether the candle closed above its open.
func (c Candlestick) IsBullish() bool { return c.Close > c.Open }

// IsBearish reports whether the candle closed below its open.
func (c Candlestick) IsBearish() bool { return c.Close < c.Open }

// Bar is a candlestick together with its bucket start timestamp (ms).
type Bar struct {
	Timestamp int64
	Candlestick
}

// Granularity selects the bucket width of a candle series.
type Granularity int

const (
	Minute1 Granularity = iota
	Minute3
	Day
)

var granularityWidth = map[Granularity]int64{
	Minute1: int64(time.Minute / time.Millisecond),
	Minute3: int64(3 * time.Minute / time.Millisecond),
	Day:     int64(24 * time.Hour / time.Millisecond),
}

var granularityToString = map[Granularity]string{
	Minute1: "1m",
	Minute3: "3m",
	Day:     "1d",
}

var stringToGranularity = map[string]Granularity{
	"1m": Minute1,
	"3m": Minute3,
	"1d": Day,
}

// String returns the exchange interval notation ("1m", "3m", "1d").
func (g Granularity) String() string {
	if s, ok := granularityToString[g]; ok {
		return s
	}
	return "unknown"
}

// ParseGranularity converts an interval string into a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	g, ok := stringToGranularity[s]
	if !ok {
		return 0, ErrInvalidGranularity
	}
	return g, nil
}

// UnmarshalText lets Granularity be decoded straight from environment variables.
func (g *Granularity) UnmarshalText(text []byte) error {
	parsed, err := ParseGranularity(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// BucketWidth returns the bucket width in milliseconds.
func (g Granularity) BucketWidth() int64 {
	return granularityWidth[g]
}

// BucketStart maps a trade timestamp (ms) to the start of its bucket.
// Monotonic and idempotent for every granularity.
func BucketStart(timestamp int64, g Granularity) int64 {
	return timestamp - timestamp%g.BucketWidth()
}
