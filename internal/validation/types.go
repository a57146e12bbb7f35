package validation

import (
	"encoding/json"
	"strings"
)

// Item is one requested cart line.
type Item struct {
	ProductID   string  `json:"productId" validate:"required"`
	Quantity    int     `json:"quantity" validate:"required,min=1"`
	ClientPrice float64 `json:"clientPrice" validate:"gte=0"` // untrusted, logged only
}

// AppliedCoupon is the client's coupon object. Only Code is used for lookup
// unless Source is trusted.
type AppliedCoupon struct {
	Code       string  `json:"code" validate:"required"`
	CouponType string  `json:"couponType,omitempty"`
	Discount   float64 `json:"discount,omitempty" validate:"gte=0"`
	Source     string  `json:"source,omitempty"`
}

// CheckoutRequest is the payload for POST /orders
type CheckoutRequest struct {
	Items             []Item          `json:"items" validate:"required,min=1,dive"`
	PaymentMethod     string          `json:"paymentMethod" validate:"required"`
	SelectedAddressID string          `json:"selectedAddressId" validate:"required"`
	AppliedCoupon     *AppliedCoupon  `json:"appliedCoupon,omitempty"`
	TransactionID     string          `json:"transactionId,omitempty"`
	Timestamp         json.RawMessage `json:"timestamp,omitempty"` // number or string
}

// IdempotencyHint is the transaction id, or the submission timestamp when
// no transaction id was sent.
func (r CheckoutRequest) IdempotencyHint() string {
	if id := strings.TrimSpace(r.TransactionID); id != "" {
		return id
	}
	ts := strings.Trim(strings.TrimSpace(string(r.Timestamp)), `"`)
	if ts == "null" {
		return ""
	}
	return ts
}
