package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

const (
	DefaultCapacity = 5
	DefaultTTL      = 5 * time.Second
)

// LogNotifier writes alerts to the logger and keeps the few most recent ones
// for display.
type LogNotifier struct {
	logger   ports.Logger
	capacity int
	ttl      time.Duration

	mu     sync.Mutex
	alerts []domain.Alert
}

// Config holds configuration for the log notifier.
type Config struct {
	Logger   ports.Logger
	Capacity int           // Alerts kept for display
	TTL      time.Duration // Display lifetime of an alert
}

// New creates a log notifier.
func New(cfg Config) (*LogNotifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for notifier")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &LogNotifier{logger: cfg.Logger, capacity: cfg.Capacity, ttl: cfg.TTL}, nil
}

// Notify implements ports.Notifier.
func (n *LogNotifier) Notify(ctx context.Context, alert domain.Alert) error {
	if alert.Time.IsZero() {
		alert.Time = time.Now()
	}
	fields := map[string]interface{}{"type": string(alert.Type)}
	switch alert.Type {
	case domain.AlertError:
		n.logger.Error(ctx, nil, alert.Message, fields)
	case domain.AlertBuy, domain.AlertSell:
		n.logger.Warn(ctx, alert.Message, fields)
	default:
		n.logger.Info(ctx, alert.Message, fields)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	if over := len(n.alerts) - n.capacity; over > 0 {
		n.alerts = append([]domain.Alert(nil), n.alerts[over:]...)
	}
	return nil
}

// Active drops alerts older than the TTL and returns the rest, oldest first.
func (n *LogNotifier) Active(now time.Time) []domain.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()

	i := 0
	for i < len(n.alerts) && now.Sub(n.alerts[i].Time) > n.ttl {
		i++
	}
	n.alerts = n.alerts[i:]
	return append([]domain.Alert(nil), n.alerts...)
}
