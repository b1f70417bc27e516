package candles

import (
	"sort"

	"cryptoSignalBot/internal/domain"
)

// DefaultMaxLen is the retained candle count enforced on consumption.
const DefaultMaxLen = 1000

// Change describes what happened to a Series since the last TakeChange call.
// Full is set after structural edits (replace, backfill, eviction); otherwise
// every key >= From may have changed.
type Change struct {
	Full bool
	From int64
}

// Series is an ordered, timestamp-keyed collection of candles for a single
// granularity. Keys are bucket starts and iterate in ascending order.
// A Series is not safe for concurrent use; it belongs to the update loop.
type Series struct {
	granularity domain.Granularity
	keys        []int64
	candles     map[int64]domain.Candlestick

	dirty  bool
	change Change
}

// NewSeries creates an empty series for the given granularity.
func NewSeries(g domain.Granularity) *Series {
	return &Series{
		granularity: g,
		candles:     make(map[int64]domain.Candlestick),
	}
}

// Granularity returns the active bucket width selector.
func (s *Series) Granularity() domain.Granularity {
	return s.granularity
}

// Len returns the number of retained candles.
func (s *Series) Len() int {
	return len(s.keys)
}

// Get returns the candle stored under the bucket key ts.
func (s *Series) Get(ts int64) (domain.Candlestick, bool) {
	c, ok := s.candles[ts]
	return c, ok
}

// Ingest folds one trade into its bucket, creating the bucket when absent.
func (s *Series) Ingest(timestamp int64, price, volume float64) int64 {
	key := domain.BucketStart(timestamp, s.granularity)

	if c, ok := s.candles[key]; ok {
		if price > c.High {
			c.High = price
		}
		if price < c.Low {
			c.Low = price
		}
		c.Close = price
		c.Volume += volume
		s.candles[key] = c
	} else {
		s.candles[key] = domain.Candlestick{Open: price, High: price, Low: price, Close: price, Volume: volume}
		s.insertKey(key)
	}

	s.markFrom(key)
	return key
}

// Replace discards the whole series and installs fresh candles, possibly for
// a different granularity. Input candles sharing a bucket are merged in
// timestamp order.
func (s *Series) Replace(g domain.Granularity, candles map[int64]domain.Candlestick) {
	timestamps := make([]int64, 0, len(candles))
	for ts := range candles {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	s.granularity = g
	s.keys = make([]int64, 0, len(candles))
	s.candles = make(map[int64]domain.Candlestick, len(candles))
	for _, ts := range timestamps {
		c := candles[ts]
		key := domain.BucketStart(ts, g)
		prev, exists := s.candles[key]
		if !exists {
			s.keys = append(s.keys, key)
			s.candles[key] = c
			continue
		}
		if c.High > prev.High {
			prev.High = c.High
		}
		if c.Low < prev.Low {
			prev.Low = c.Low
		}
		prev.Close = c.Close
		prev.Volume += c.Volume
		s.candles[key] = prev
	}
	s.markFull()
}

// MergeBackfill inserts candles strictly older than the current oldest key.
// Existing keys are never overwritten. It returns the number of candles added.
func (s *Series) MergeBackfill(older map[int64]domain.Candlestick) int {
	oldest, hasOldest := s.OldestTimestamp()

	added := make([]int64, 0, len(older))
	for ts, c := range older {
		key := domain.BucketStart(ts, s.granularity)
		if hasOldest && key >= oldest {
			continue
		}
		if _, exists := s.candles[key]; exists {
			continue
		}
		s.candles[key] = c
		added = append(added, key)
	}
	if len(added) == 0 {
		return 0
	}

	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	s.keys = append(added, s.keys...)
	s.markFull()
	return len(added)
}

// EvictOldest drops the lowest keys until at most maxLen candles remain.
func (s *Series) EvictOldest(maxLen int) int {
	if maxLen < 0 || len(s.keys) <= maxLen {
		return 0
	}
	n := len(s.keys) - maxLen
	for _, key := range s.keys[:n] {
		delete(s.candles, key)
	}
	s.keys = append([]int64(nil), s.keys[n:]...)
	s.markFull()
	return n
}

// OldestTimestamp returns the lowest bucket key.
func (s *Series) OldestTimestamp() (int64, bool) {
	if len(s.keys) == 0 {
		return 0, false
	}
	return s.keys[0], true
}

// LatestTimestamp returns the highest bucket key.
func (s *Series) LatestTimestamp() (int64, bool) {
	if len(s.keys) == 0 {
		return 0, false
	}
	return s.keys[len(s.keys)-1], true
}

// IndexOf returns the position of the first key >= ts.
func (s *Series) IndexOf(ts int64) int {
	return sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= ts })
}

// Bars returns an ascending copy of the series.
func (s *Series) Bars() []domain.Bar {
	bars := make([]domain.Bar, len(s.keys))
	for i, key := range s.keys {
		bars[i] = domain.Bar{Timestamp: key, Candlestick: s.candles[key]}
	}
	return bars
}

// BarsFrom returns an ascending copy of the positions >= from.
func (s *Series) BarsFrom(from int) []domain.Bar {
	if from < 0 {
		from = 0
	}
	if from >= len(s.keys) {
		return nil
	}
	bars := make([]domain.Bar, 0, len(s.keys)-from)
	for _, key := range s.keys[from:] {
		bars = append(bars, domain.Bar{Timestamp: key, Candlestick: s.candles[key]})
	}
	return bars
}

// Candles returns a copy of the series as a plain map.
func (s *Series) Candles() map[int64]domain.Candlestick {
	out := make(map[int64]domain.Candlestick, len(s.candles))
	for k, v := range s.candles {
		out[k] = v
	}
	return out
}

// TakeChange reports and clears the pending change, if any.
func (s *Series) TakeChange() (Change, bool) {
	if !s.dirty {
		return Change{}, false
	}
	c := s.change
	s.dirty = false
	s.change = Change{}
	return c, true
}

func (s *Series) insertKey(key int64) {
	n := len(s.keys)
	if n == 0 || key > s.keys[n-1] {
		s.keys = append(s.keys, key)
		return
	}
	i := sort.Search(n, func(i int) bool { return s.keys[i] >= key })
	s.keys = append(s.keys, 0)
	copy(s.keys[i+1:], s.keys[i:])
	s.keys[i] = key
}

func (s *Series) markFrom(key int64) {
	if !s.dirty {
		s.dirty = true
		s.change = Change{From: key}
		return
	}
	if !s.change.Full && key < s.change.From {
		s.change.From = key
	}
}

func (s *Series) markFull() {
	s.dirty = true
	s.change = Change{Full: true}
}
