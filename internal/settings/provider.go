package settings

import (
	"context"

	"github.com/imrishuroy/go-crashcart-checkout/internal/pricing"
)

// Provider serves admin-managed configuration to the checkout path.
// Coupon returns (nil, nil) for an unknown code.
type Provider interface {
	FeeSchedule(ctx context.Context) (pricing.FeeSchedule, error)
	Coupon(ctx context.Context, code string) (*pricing.CouponDefinition, error)
	// Invalidate drops cached entries after an admin write. With no keys,
	// every cached entry is dropped.
	Invalidate(ctx context.Context, keys ...Key) error
}

// Key identifies one cached configuration entry.
type Key string

// FeesKey is the fee schedule entry.
const FeesKey Key = "fees"

// CouponKey is the entry for one coupon code.
func CouponKey(code string) Key {
	return Key("coupon:" + pricing.NormalizeCode(code))
}
