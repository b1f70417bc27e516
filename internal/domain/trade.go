package domain

// TradeEvent is a single execution received from the live trade stream.
// Price and Quantity are kept as the decimal strings the exchange sends.
type TradeEvent struct {
	Symbol    string
	Price     string
	Quantity  string
	Timestamp int64 // Trade time in milliseconds
	IsBuyer   bool
}
