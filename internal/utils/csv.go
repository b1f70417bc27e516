package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"cryptoSignalBot/internal/domain"
)

var candleHeader = []string{"open_time", "timestamp_ms", "symbol", "interval", "open", "high", "low", "close", "volume"}

// WriteCandlesToCSV writes candles in ascending timestamp order.
func WriteCandlesToCSV(market domain.Market, candles map[int64]domain.Candlestick, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	// Write header
	if err := writer.Write(candleHeader); err != nil {
		return err
	}

	keys := make([]int64, 0, len(candles))
	for ts := range candles {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, ts := range keys {
		c := candles[ts]
		if err := writer.Write([]string{
			time.UnixMilli(ts).UTC().Format(time.RFC3339),
			strconv.FormatInt(ts, 10),
			market.Symbol,
			market.Granularity.String(),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCandlesFromCSV reads a file written by WriteCandlesToCSV. The market is
// taken from the first data row.
func ReadCandlesFromCSV(filename string) (domain.Market, map[int64]domain.Candlestick, error) {
	var market domain.Market

	file, err := os.Open(filename)
	if err != nil {
		return market, nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(candleHeader)

	if _, err := reader.Read(); err != nil {
		return market, nil, fmt.Errorf("failed to read header: %w", err)
	}

	candles := make(map[int64]domain.Candlestick)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return market, nil, err
		}

		ts, err := strconv.ParseInt(record[1], 10, 64)
		if err != nil {
			return market, nil, fmt.Errorf("line %d: invalid timestamp %q: %w", line, record[1], err)
		}
		if market.Symbol == "" {
			g, err := domain.ParseGranularity(record[3])
			if err != nil {
				return market, nil, fmt.Errorf("line %d: %w", line, err)
			}
			market = domain.Market{Symbol: record[2], Granularity: g}
		}

		var values [5]float64
		for i := range values {
			values[i], err = strconv.ParseFloat(record[4+i], 64)
			if err != nil {
				return market, nil, fmt.Errorf("line %d: invalid %s %q: %w", line, candleHeader[4+i], record[4+i], err)
			}
		}
		candles[ts] = domain.Candlestick{Open: values[0], High: values[1], Low: values[2], Close: values[3], Volume: values[4]}
	}
	return market, candles, nil
}
