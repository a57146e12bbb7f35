package pricing

import "strings"

// ScopeType selects what a FeeRule matches on.
type ScopeType string

const (
	ScopeProduct  ScopeType = "product"
	ScopeCategory ScopeType = "category"
	ScopeAll      ScopeType = "all"
)

// Fees is a (shipping, convenience, platform) triple.
type Fees struct {
	Shipping    float64 `json:"shipping" dynamodbav:"shipping"`
	Convenience float64 `json:"convenience" dynamodbav:"convenience"`
	Platform    float64 `json:"platform" dynamodbav:"platform"`
}

// Sum is shipping + convenience + platform.
func (f Fees) Sum() float64 {
	return dec(f.Shipping).Add(dec(f.Convenience)).Add(dec(f.Platform)).InexactFloat64()
}

// FeeRule maps a scope to fee values.
type FeeRule struct {
	ScopeType      ScopeType `json:"scopeType" dynamodbav:"scope_type"`
	ScopeValue     string    `json:"scopeValue" dynamodbav:"scope_value"`
	ShippingFee    float64   `json:"shippingFee" dynamodbav:"shipping_fee"`
	ConvenienceFee float64   `json:"convenienceFee" dynamodbav:"convenience_fee"`
	PlatformFee    float64   `json:"platformFee" dynamodbav:"platform_fee"`
}

func (r FeeRule) fees() Fees {
	return Fees{Shipping: r.ShippingFee, Convenience: r.ConvenienceFee, Platform: r.PlatformFee}
}

func (r FeeRule) catchAll() bool {
	v := strings.TrimSpace(r.ScopeValue)
	return r.ScopeType == ScopeAll || v == "*" || strings.EqualFold(v, "all")
}

// FeeSchedule is the admin-managed fee configuration.
// FreeAbove <= 0 disables the free-delivery threshold.
type FeeSchedule struct {
	Defaults  Fees      `json:"defaults" dynamodbav:"defaults"`
	FreeAbove float64   `json:"freeAbove" dynamodbav:"free_above"`
	Rules     []FeeRule `json:"rules" dynamodbav:"rules"`
}

// DefaultFeeSchedule is used when the configured schedule cannot be read.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		Defaults:  Fees{Shipping: 40},
		FreeAbove: 999,
	}
}

// FeeLine is what fee resolution needs to know about a cart line.
type FeeLine struct {
	ProductID string
	Category  string
}

// LineFees picks the most specific rule for one line:
// product id, then category (case-insensitive), then catch-all, then defaults.
func (s FeeSchedule) LineFees(line FeeLine) Fees {
	var category, catchAll *FeeRule
	for i := range s.Rules {
		r := &s.Rules[i]
		switch {
		case r.ScopeType == ScopeProduct && r.ScopeValue == line.ProductID:
			return r.fees()
		case r.ScopeType == ScopeCategory && category == nil && line.Category != "" &&
			strings.EqualFold(strings.TrimSpace(r.ScopeValue), strings.TrimSpace(line.Category)):
			category = r
		case catchAll == nil && r.catchAll():
			catchAll = r
		}
	}
	if category != nil {
		return category.fees()
	}
	if catchAll != nil {
		return catchAll.fees()
	}
	return s.Defaults
}

// ResolveFees returns the order-level fees: per category, the maximum across
// all lines, so a mixed cart is never under-charged. An empty cart gets the defaults.
func (s FeeSchedule) ResolveFees(lines []FeeLine) Fees {
	if len(lines) == 0 {
		return s.Defaults
	}
	var out Fees
	for i, line := range lines {
		f := s.LineFees(line)
		if i == 0 {
			out = f
			continue
		}
		out.Shipping = max(out.Shipping, f.Shipping)
		out.Convenience = max(out.Convenience, f.Convenience)
		out.Platform = max(out.Platform, f.Platform)
	}
	return out
}
