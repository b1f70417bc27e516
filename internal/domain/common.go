package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Market is the strongly typed (symbol, granularity) pair a series belongs to.
type Market struct {
	Symbol      string
	Granularity Granularity
}

// IntentStatus records how the execution collaborator answered a trade intent.
type IntentStatus string

const (
	IntentFilled IntentStatus = "filled"
	IntentFailed IntentStatus = "failed"
)
