package rewards

import (
	"context"
	"errors"
	"time"

	"github.com/imrishuroy/go-crashcart-checkout/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Defaults for the order-placed reward.
const (
	DefaultRate     = 0.10
	DefaultValidity = 30 * 24 * time.Hour
)

// Amount is the CrashCash earned by an order: the sum of catalog reward
// values when any line declares one, otherwise floor(subtotal * rate).
func Amount(lines []pricing.PricedLine, subtotal, rate float64) float64 {
	sum := decimal.Zero
	declared := false
	for _, l := range lines {
		if l.CrashCashValue > 0 {
			declared = true
			sum = sum.Add(decimal.NewFromFloat(l.CrashCashValue).Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}
	if declared {
		return sum.InexactFloat64()
	}
	return decimal.NewFromFloat(subtotal).Mul(decimal.NewFromFloat(rate)).Floor().InexactFloat64()
}

// Issuer credits at most one order-placed reward per (order, user).
type Issuer struct {
	store    *Store
	rate     float64
	validity time.Duration
	logger   *zap.Logger
	nowFunc  func() time.Time
}

// NewIssuer creates an Issuer. Non-positive rate or validity fall back to the defaults.
func NewIssuer(store *Store, rate float64, validity time.Duration, logger *zap.Logger) *Issuer {
	if rate <= 0 {
		rate = DefaultRate
	}
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &Issuer{store: store, rate: rate, validity: validity, logger: logger, nowFunc: time.Now}
}

// Rate is the subtotal share credited when no line declares a reward value.
func (i *Issuer) Rate() float64 { return i.rate }

// Issue credits the order-placed reward for orderID unless one exists.
// It returns the ledger entry (new or existing) and whether this call
// created it. A zero amount issues nothing and returns (nil, false, nil).
func (i *Issuer) Issue(ctx context.Context, orderID, userID string, amount float64) (*Reward, bool, error) {
	id := ID(orderID, userID, SourceOrderPlaced)

	existing, err := i.store.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	if amount <= 0 {
		return nil, false, nil
	}

	now := i.nowFunc().UTC()
	r := Reward{
		RewardID:  id,
		UserID:    userID,
		OrderID:   orderID,
		Source:    SourceOrderPlaced,
		Amount:    amount,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.validity),
	}
	if err := i.store.Put(ctx, r); err != nil {
		if errors.Is(err, ErrAlreadyIssued) {
			// lost a race with a concurrent issue for the same order
			existing, gerr := i.store.Get(ctx, id)
			if gerr != nil {
				return nil, false, gerr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	i.logger.Info("crashcash issued",
		zap.String("order_id", orderID),
		zap.String("user_id", userID),
		zap.Float64("amount", amount))
	return &r, true, nil
}
