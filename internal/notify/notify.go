package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// OrderPlaced is published once per created order. The worker turns it into
// a confirmation email.
type OrderPlaced struct {
	OrderID         string    `json:"order_id"`
	UserID          string    `json:"user_id"`
	IdempotencyKey  string    `json:"idempotency_key,omitempty"`
	Total           float64   `json:"total"`
	PaymentMethod   string    `json:"payment_method"`
	Status          string    `json:"status"`
	ItemsCount      int       `json:"items_count"`
	CrashCashEarned float64   `json:"crash_cash_earned"`
	CreatedAt       time.Time `json:"created_at"`
	CorrelationID   string    `json:"correlation_id,omitempty"`
}

// Notifier dispatches order events. Callers treat failures as non-fatal.
type Notifier interface {
	OrderPlaced(ctx context.Context, ev OrderPlaced) error
	Close() error
}

func encode(ev OrderPlaced) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal order event: %w", err)
	}
	return b, nil
}

// Noop drops events after logging them.
type Noop struct {
	Logger *zap.Logger
}

// OrderPlaced implements Notifier.
func (n Noop) OrderPlaced(ctx context.Context, ev OrderPlaced) error {
	n.Logger.Debug("order event dropped", zap.String("order_id", ev.OrderID))
	return nil
}

// Close implements Notifier.
func (Noop) Close() error { return nil }
