package risk

import (
	"fmt"
	"sync"
	"time"

	"cryptoSignalBot/internal/domain"
)

const (
	DefaultAlertThreshold    = 85.0
	DefaultMomentumThreshold = 0.7
	DefaultCooldown          = 60 * time.Second
	DefaultTradeAmount       = 0.001
)

// SignalSource tells the gate which engine produced a signal.
type SignalSource int

const (
	SourceScore SignalSource = iota
	SourceMomentum
)

func (s SignalSource) String() string {
	if s == SourceMomentum {
		return "momentum"
	}
	return "score"
}

// Signal is a directional reading at the latest candle.
type Signal struct {
	Source     SignalSource
	Side       domain.OrderSide
	Price      float64
	Score      float64 // Pattern total, only for SourceScore
	Strength   float64 // In [0, 1]
	Timestamp  int64
	Indicators domain.TradeIndicators
}

// GateConfig holds configuration for the signal gate
type GateConfig struct {
	Symbol            string
	AlertThreshold    float64
	MomentumThreshold float64
	Cooldown          time.Duration
	TradeAmount       float64
	AutoTrading       bool
	Now               func() time.Time
}

// GateStats holds counters about gate decisions
type GateStats struct {
	LastTradeTime time.Time
	Alerts        int
	Dispatched    int
	Suppressed    int // Qualifying signals blocked by the cooldown
}

// Decision is what the caller must forward to collaborators.
type Decision struct {
	Alerts  []domain.Alert
	Intents []domain.TradeIntent
}

// Gate decides which signals become alerts and trade intents. The cooldown is
// global across both directions.
type Gate struct {
	mu     sync.Mutex
	config GateConfig
	stats  GateStats
	traded bool
}

// NewGate creates a new signal gate, filling zero config values with defaults.
func NewGate(config GateConfig) *Gate {
	if config.AlertThreshold <= 0 {
		config.AlertThreshold = DefaultAlertThreshold
	}
	if config.MomentumThreshold <= 0 {
		config.MomentumThreshold = DefaultMomentumThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}
	if config.TradeAmount <= 0 {
		config.TradeAmount = DefaultTradeAmount
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Gate{config: config}
}

// SetSymbol changes the instrument stamped on new intents. The cooldown
// survives a market switch.
func (g *Gate) SetSymbol(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.config.Symbol = symbol
}

// Enabled reports whether auto-trading is on.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.config.AutoTrading
}

// Toggle flips auto-trading and returns the Info alert announcing it.
func (g *Gate) Toggle() domain.Alert {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.config.AutoTrading = !g.config.AutoTrading

	msg := "Automatic trading deactivated"
	if g.config.AutoTrading {
		msg = "Automatic trading activated"
	}
	return domain.Alert{Message: msg, Type: domain.AlertInfo, Time: g.config.Now()}
}

// Qualifies reports whether a signal crosses its alerting threshold.
func (g *Gate) Qualifies(s Signal) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.qualifies(s)
}

func (g *Gate) qualifies(s Signal) bool {
	switch s.Source {
	case SourceScore:
		return s.Score >= g.config.AlertThreshold
	case SourceMomentum:
		return s.Strength > g.config.MomentumThreshold
	default:
		return false
	}
}

// Evaluate turns the latest-candle signals into alerts and, when auto-trading
// is on and the cooldown has elapsed, a trade intent. The cooldown clock
// starts on dispatch, not on execution success.
func (g *Gate) Evaluate(signals []Signal) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	var d Decision
	for _, s := range signals {
		if !g.qualifies(s) {
			continue
		}
		now := g.config.Now()

		d.Alerts = append(d.Alerts, domain.Alert{
			Message: alertMessage(s),
			Type:    alertType(s.Side),
			Time:    now,
		})
		g.stats.Alerts++

		if !g.config.AutoTrading {
			continue
		}
		if g.traded && now.Sub(g.stats.LastTradeTime) <= g.config.Cooldown {
			g.stats.Suppressed++
			continue
		}

		d.Intents = append(d.Intents, domain.TradeIntent{
			Symbol:     g.config.Symbol,
			Side:       s.Side,
			Price:      s.Price,
			Amount:     g.config.TradeAmount,
			Strength:   s.Strength,
			Timestamp:  s.Timestamp,
			Indicators: s.Indicators,
		})
		g.traded = true
		g.stats.LastTradeTime = now
		g.stats.Dispatched++
	}
	return d
}

// GetStats returns a copy of the gate statistics
func (g *Gate) GetStats() GateStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

func alertType(side domain.OrderSide) domain.AlertType {
	if side == domain.Sell {
		return domain.AlertSell
	}
	return domain.AlertBuy
}

func alertMessage(s Signal) string {
	if s.Source == SourceScore {
		label := "buy"
		if s.Side == domain.Sell {
			label = "sell"
		}
		return fmt.Sprintf("Very strong %s signal! Score: %.0f/100", label, s.Score)
	}
	label := "Buy"
	if s.Side == domain.Sell {
		label = "Sell"
	}
	return fmt.Sprintf("%s signal detected\nPrice: %.2f USDT\nStrength: %.2f\nRSI: %.2f",
		label, s.Price, s.Strength, s.Indicators.RSI)
}
