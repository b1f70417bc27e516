package ports

import (
	"context"

	"cryptoSignalBot/internal/domain"
)

// MarketDataSource supplies historical candles and the live trade stream.
type MarketDataSource interface {
	// FetchCandles retrieves up to limit candles for a symbol and granularity.
	// When before is non-nil only candles whose bucket start is < *before are returned.
	FetchCandles(ctx context.Context, symbol string, granularity domain.Granularity, before *int64, limit int) (map[int64]domain.Candlestick, error)

	// StreamTrades starts a reconnecting trade stream for the symbol.
	// Returns channels to control the stream (doneCh, stopCh) or an error if connection fails.
	StreamTrades(ctx context.Context, symbol string, handler func(event domain.TradeEvent), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
