package main

import (
	"context"

	"github.com/imrishuroy/go-crashcart-checkout/internal/orders"
	"go.uber.org/zap"
)

// Mailer sends the order confirmation email.
type Mailer interface {
	OrderConfirmation(ctx context.Context, order orders.Order, crashCash float64) error
}

// LogMailer records the confirmation in the log. Delivery is owned by the
// email service that tails these entries.
type LogMailer struct {
	Logger *zap.Logger
}

// OrderConfirmation implements Mailer.
func (m LogMailer) OrderConfirmation(ctx context.Context, order orders.Order, crashCash float64) error {
	m.Logger.Info("order confirmation",
		zap.String("order_id", order.OrderID),
		zap.String("user_id", order.UserID),
		zap.Float64("total", order.Total),
		zap.String("payment_method", order.PaymentMethod),
		zap.Int("items", order.ItemsCount()),
		zap.Float64("crash_cash", crashCash))
	return nil
}
