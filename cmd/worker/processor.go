package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/imrishuroy/go-crashcart-checkout/internal/idempotency"
	"github.com/imrishuroy/go-crashcart-checkout/internal/notify"
	"github.com/imrishuroy/go-crashcart-checkout/internal/orders"
	"github.com/imrishuroy/go-crashcart-checkout/internal/rewards"
	"go.uber.org/zap"
)

// DedupeStore records which order events were already handled.
type DedupeStore interface {
	CreateIfNotExists(ctx context.Context, key, orderID string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// OrderStore is the part of orders.Store the worker uses.
type OrderStore interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	SetCrashCashEarned(ctx context.Context, orderID string, amount float64) error
	IncrementAttempts(ctx context.Context, orderID string) error
}

// RewardIssuer credits CrashCash at most once per order.
type RewardIssuer interface {
	Issue(ctx context.Context, orderID, userID string, amount float64) (*rewards.Reward, bool, error)
	Rate() float64
}

// Processor turns order-placed events into confirmation emails.
type Processor struct {
	dedupe  DedupeStore
	orders  OrderStore
	rewards RewardIssuer
	mailer  Mailer
	logger  *zap.Logger
}

// NewProcessor creates a new worker processor.
func NewProcessor(dedupe DedupeStore, orderStore OrderStore, issuer RewardIssuer, mailer Mailer, logger *zap.Logger) *Processor {
	return &Processor{
		dedupe:  dedupe,
		orders:  orderStore,
		rewards: issuer,
		mailer:  mailer,
		logger:  logger,
	}
}

func dedupeKey(orderID string) string { return "notify#" + orderID }

// Handle processes an SQS batch and reports the messages to redeliver.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

var errMalformed = errors.New("malformed order event")

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg notify.OrderPlaced
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if msg.OrderID == "" {
		return fmt.Errorf("%w: missing order_id", errMalformed)
	}
	log := p.logger.With(zap.String("order_id", msg.OrderID), zap.String("correlation_id", msg.CorrelationID))

	key := dedupeKey(msg.OrderID)
	created, err := p.dedupe.CreateIfNotExists(ctx, key, msg.OrderID)
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !created {
		existing, err := p.dedupe.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read event claim: %w", err)
		}
		if existing != nil && existing.Status == idempotency.StatusDone {
			log.Info("duplicate order event skipped")
			return nil
		}
		// IN_PROGRESS or FAILED: an earlier attempt did not finish
		log.Info("retrying order event", zap.String("previous_status", statusOf(existing)))
	}

	order, err := p.orders.Get(ctx, msg.OrderID)
	if err != nil {
		return fmt.Errorf("fetch order: %w", err)
	}
	if order == nil {
		_ = p.dedupe.MarkFailed(ctx, key, "order not found")
		return fmt.Errorf("order not found: %s", msg.OrderID)
	}

	earned := p.backfillReward(ctx, *order)

	if err := p.mailer.OrderConfirmation(ctx, *order, earned); err != nil {
		if aerr := p.orders.IncrementAttempts(ctx, order.OrderID); aerr != nil {
			log.Warn("attempts not incremented", zap.Error(aerr))
		}
		if merr := p.dedupe.MarkFailed(ctx, key, fmt.Sprintf("mail failed: %v", err)); merr != nil {
			log.Warn("event claim not marked failed", zap.Error(merr))
		}
		return fmt.Errorf("send confirmation: %w", err)
	}

	body, err := json.Marshal(map[string]interface{}{"orderId": order.OrderID, "crashCashEarned": earned})
	if err != nil {
		log.Warn("event response not encoded", zap.Error(err))
	}
	if err := p.dedupe.MarkDone(ctx, key, string(body), http.StatusOK); err != nil {
		// the email went out; a redelivery would resend it
		log.Warn("event claim not marked done", zap.Error(err))
	}
	log.Info("order event processed")
	return nil
}

// backfillReward issues the order's CrashCash if the checkout did not get
// to it, and returns the ledger amount.
func (p *Processor) backfillReward(ctx context.Context, order orders.Order) float64 {
	log := p.logger.With(zap.String("order_id", order.OrderID))

	amount := rewards.Amount(order.Lines, order.Notes.Subtotal, p.rewards.Rate())
	r, created, err := p.rewards.Issue(ctx, order.OrderID, order.UserID, amount)
	if err != nil {
		log.Warn("crashcash backfill failed", zap.Error(err))
		return order.CrashCashEarned
	}
	if r == nil {
		return 0
	}
	if created {
		log.Info("crashcash backfilled", zap.Float64("amount", r.Amount))
	}
	if created || order.CrashCashEarned != r.Amount {
		if err := p.orders.SetCrashCashEarned(ctx, order.OrderID, r.Amount); err != nil {
			log.Warn("crashcash amount not stored on order", zap.Error(err))
		}
	}
	return r.Amount
}

func statusOf(rec *idempotency.IdempotencyRecord) string {
	if rec == nil {
		return ""
	}
	return rec.Status
}
