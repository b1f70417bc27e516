package domain

import "time"

// SignalScoring holds the pattern sub-scores for one timestamp and direction.
// Each sub-score lies in [0, 25]; TotalScore is the sum of the two sub-scores
// relevant to the direction.
type SignalScoring struct {
	BullishEngulfing float64
	BearishEngulfing float64
	MorningStar      float64
	EveningStar      float64
	TotalScore       float64
}

// TradeIndicators is the indicator snapshot attached to a trade intent.
type TradeIndicators struct {
	RSI         float64
	MA5         float64
	MA20        float64
	VolumeRatio float64
}

// TradeIntent is an immutable request handed to the execution worker.
type TradeIntent struct {
	Symbol     string
	Side       OrderSide
	Price      float64
	Amount     float64
	Strength   float64
	Timestamp  int64 // Bucket timestamp of the candle that produced the signal
	Indicators TradeIndicators
}

// AlertType classifies user-facing notifications.
type AlertType string

const (
	AlertBuy   AlertType = "BUY"
	AlertSell  AlertType = "SELL"
	AlertInfo  AlertType = "INFO"
	AlertError AlertType = "ERROR"
)

// Alert is a notification for the presentation collaborator.
type Alert struct {
	Message string
	Type    AlertType
	Time    time.Time
}
