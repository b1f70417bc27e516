package ports

import (
	"context"
	"time"

	"cryptoSignalBot/internal/domain"
)

// Snapshot is a read-only copy of everything the chart shows.
type Snapshot struct {
	Market       domain.Market
	Bars         []domain.Bar
	MA5          map[int64]float64
	MA10         map[int64]float64
	MA20         map[int64]float64
	MA200        map[int64]float64
	RSI          map[int64]float64
	MomentumBuy  map[int64]float64
	MomentumSell map[int64]float64
	BuySignals   map[int64]domain.SignalScoring
	SellSignals  map[int64]domain.SignalScoring
	AutoTrading  bool
	TakenAt      time.Time
}

// ChartSink renders snapshots. It must not retain references into them past Render.
type ChartSink interface {
	Render(ctx context.Context, snapshot Snapshot) error
}

// Notifier delivers alerts to the user.
type Notifier interface {
	Notify(ctx context.Context, alert domain.Alert) error
}
