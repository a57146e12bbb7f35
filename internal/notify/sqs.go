package notify

import (
	"context"

	"github.com/imrishuroy/go-crashcart-checkout/internal/aws"
)

// sender is the part of aws.Publisher the notifier uses.
type sender interface {
	Send(ctx context.Context, messageBody string, attributes map[string]string) error
}

var _ sender = (*aws.Publisher)(nil)

// SQSNotifier enqueues order events for the notification worker.
type SQSNotifier struct {
	publisher sender
}

// NewSQSNotifier creates an SQSNotifier.
func NewSQSNotifier(publisher *aws.Publisher) *SQSNotifier {
	return &SQSNotifier{publisher: publisher}
}

// OrderPlaced implements Notifier.
func (n *SQSNotifier) OrderPlaced(ctx context.Context, ev OrderPlaced) error {
	body, err := encode(ev)
	if err != nil {
		return err
	}
	return n.publisher.Send(ctx, string(body), map[string]string{
		"order_id":        ev.OrderID,
		"idempotency_key": ev.IdempotencyKey,
		"correlation_id":  ev.CorrelationID,
	})
}

// Close implements Notifier.
func (n *SQSNotifier) Close() error { return nil }
