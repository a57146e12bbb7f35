package pricing

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CouponType is the stored coupon type.
type CouponType string

const (
	CouponPercentage   CouponType = "percentage"
	CouponFlat         CouponType = "flat"
	CouponFreeDelivery CouponType = "freeDelivery"
	CouponWaiveCharges CouponType = "waiveCharges"
)

// Charge names a fee category a coupon can waive.
type Charge string

const (
	ChargeShipping    Charge = "shipping"
	ChargeConvenience Charge = "convenience"
	ChargePlatform    Charge = "platform"
)

var allCharges = []Charge{ChargeShipping, ChargeConvenience, ChargePlatform}

// CouponDefinition is the canonical, server-stored coupon.
type CouponDefinition struct {
	Code             string     `json:"code" dynamodbav:"code"` // PK, upper-cased
	Type             CouponType `json:"couponType" dynamodbav:"coupon_type"`
	Value            float64    `json:"discountValue" dynamodbav:"discount_value"`
	MaxDiscount      *float64   `json:"maxDiscount,omitempty" dynamodbav:"max_discount,omitempty"`
	MinOrderValue    float64    `json:"minOrderValue" dynamodbav:"min_order_value"`
	AppliesToCharges []Charge   `json:"appliesToCharges,omitempty" dynamodbav:"applies_to_charges,omitempty"`
	UsageLimit       int        `json:"usageLimit" dynamodbav:"usage_limit"` // 0 = unlimited
	UsedCount        int        `json:"usedCount" dynamodbav:"used_count"`
	PerUserLimit     int        `json:"perUserLimit" dynamodbav:"per_user_limit"` // 0 = single use per user
	ExpiresAt        *time.Time `json:"expiresAt,omitempty" dynamodbav:"expires_at,omitempty"`
	IsActive         bool       `json:"isActive" dynamodbav:"is_active"`
}

// Coupon eligibility errors.
var (
	ErrCouponInactive      = errors.New("coupon inactive")
	ErrCouponExpired       = errors.New("coupon expired")
	ErrCouponMinOrder      = errors.New("order below coupon minimum")
	ErrCouponExhausted     = errors.New("coupon usage limit reached")
	ErrCouponUnknownType   = errors.New("unknown coupon type")
	ErrCouponUntrusted     = errors.New("coupon has no server definition and an untrusted source")
	ErrCouponUserExhausted = errors.New("coupon already used by this user")
)

// NormalizeCode is the lookup form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Eligible checks the definition-level conditions at now for subtotal.
func (d CouponDefinition) Eligible(now time.Time, subtotal float64) error {
	switch {
	case !d.IsActive:
		return ErrCouponInactive
	case d.ExpiresAt != nil && now.After(*d.ExpiresAt):
		return ErrCouponExpired
	case subtotal < d.MinOrderValue:
		return fmt.Errorf("%w: %.2f < %.2f", ErrCouponMinOrder, subtotal, d.MinOrderValue)
	case d.UsageLimit > 0 && d.UsedCount >= d.UsageLimit:
		return ErrCouponExhausted
	}
	return nil
}

// Kind is the resolved coupon variant used by all discount math.
type Kind int

const (
	KindPercentage Kind = iota + 1
	KindFlat
	KindFreeDelivery
	KindWaiveCharges
)

func (k Kind) String() string {
	switch k {
	case KindPercentage:
		return string(CouponPercentage)
	case KindFlat:
		return string(CouponFlat)
	case KindFreeDelivery:
		return string(CouponFreeDelivery)
	case KindWaiveCharges:
		return string(CouponWaiveCharges)
	}
	return "unknown"
}

// Coupon is a coupon resolved at the boundary, whatever its source.
type Coupon struct {
	Code        string
	Kind        Kind
	Value       float64
	MaxDiscount *float64
	Waives      []Charge
	Source      string            // "definition" or the trusted client source
	Definition  *CouponDefinition // nil for client-sourced coupons
}

// SourceDefinition marks a coupon resolved from a server definition.
const SourceDefinition = "definition"

func kindOf(t CouponType) (Kind, bool) {
	switch strings.ToLower(string(t)) {
	case "percentage", "percent":
		return KindPercentage, true
	case "flat", "fixed":
		return KindFlat, true
	case "freedelivery", "free_delivery":
		return KindFreeDelivery, true
	case "waivecharges", "waive_charges":
		return KindWaiveCharges, true
	}
	return 0, false
}

// FromDefinition resolves a stored definition.
func FromDefinition(d CouponDefinition) (Coupon, error) {
	kind, ok := kindOf(d.Type)
	if !ok {
		return Coupon{}, fmt.Errorf("%w: %q", ErrCouponUnknownType, d.Type)
	}
	def := d
	return Coupon{
		Code:        NormalizeCode(d.Code),
		Kind:        kind,
		Value:       d.Value,
		MaxDiscount: d.MaxDiscount,
		Waives:      slices.Clone(d.AppliesToCharges),
		Source:      SourceDefinition,
		Definition:  &def,
	}, nil
}

// ClientCoupon is the coupon object a client submits.
type ClientCoupon struct {
	Code     string
	Type     string
	Discount float64
	Source   string
}

// FromClient resolves a coupon that has no server definition. Only sources in
// trusted are honored; their client-supplied discount is then used as is.
func FromClient(c ClientCoupon, trusted []string) (Coupon, error) {
	if c.Source == "" || !slices.Contains(trusted, c.Source) {
		return Coupon{}, ErrCouponUntrusted
	}
	kind, ok := kindOf(CouponType(c.Type))
	if !ok {
		kind = KindFlat
	}
	// client coupons carry no charge list, so a waive coupon waives nothing
	cp := Coupon{
		Code:   NormalizeCode(c.Code),
		Kind:   kind,
		Value:  c.Discount,
		Source: c.Source,
	}
	return cp, nil
}

// Discount is the monetary discount on subtotal, within [0, subtotal].
func (c Coupon) Discount(subtotal float64) float64 {
	sub := dec(subtotal)
	var d decimal.Decimal
	switch c.Kind {
	case KindPercentage:
		d = sub.Mul(dec(c.Value)).Div(decimal.NewFromInt(100)).Floor()
		if c.MaxDiscount != nil {
			d = decimal.Min(d, dec(*c.MaxDiscount))
		}
	case KindFlat:
		d = dec(c.Value)
	default:
		d = decimal.Zero
	}
	return clamp(d, decimal.Zero, sub).InexactFloat64()
}

// Waived is the set of fee categories the coupon zeroes.
func (c Coupon) Waived() map[Charge]bool {
	out := make(map[Charge]bool, len(allCharges))
	for _, ch := range c.Waives {
		out[Charge(strings.ToLower(string(ch)))] = true
	}
	if c.Kind == KindFreeDelivery {
		out[ChargeShipping] = true
	}
	return out
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
