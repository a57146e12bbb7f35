package checkout

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/imrishuroy/go-crashcart-checkout/internal/orders"
	"github.com/imrishuroy/go-crashcart-checkout/internal/pricing"
)

// MatchTolerance is the currency slack allowed when comparing a resubmitted
// checkout against an existing order, on the total and on each line price.
const MatchTolerance = 1.0

// StoredPaymentMethod maps a wire payment method to its stored form.
func StoredPaymentMethod(wire string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(wire)) {
	case "COD":
		return orders.PaymentCOD, true
	case "CARD", "UPI", "WALLET", orders.PaymentOnline:
		return orders.PaymentOnline, true
	}
	return "", false
}

// InitialStatus is the status of a new order paid with method.
func InitialStatus(method string) string {
	if method == orders.PaymentCOD {
		return orders.StatusOrderPlaced
	}
	return orders.StatusPaymentPending
}

type lineKey struct {
	productID string
	quantity  int
	price     float64
}

func normalize(lines []pricing.PricedLine) []lineKey {
	out := make([]lineKey, 0, len(lines))
	for _, l := range lines {
		out = append(out, lineKey{productID: l.ProductID, quantity: l.Quantity, price: l.Price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].productID < out[j].productID })
	return out
}

// SameCart reports whether two line sets hold the same products in the same
// quantities at prices within MatchTolerance.
func SameCart(a, b []pricing.PricedLine) bool {
	if len(a) != len(b) {
		return false
	}
	na, nb := normalize(a), normalize(b)
	for i := range na {
		if na[i].productID != nb[i].productID || na[i].quantity != nb[i].quantity {
			return false
		}
		if !pricing.WithinTolerance(na[i].price, nb[i].price, MatchTolerance) {
			return false
		}
	}
	return true
}

// Duplicate reports whether candidate is an earlier submission of the cart
// lines totalling total, as seen at now with the given lookback window.
func Duplicate(candidate orders.Order, lines []pricing.PricedLine, total float64, now time.Time, window time.Duration) bool {
	switch {
	case candidate.IsPaid:
		return false
	case !slices.Contains(orders.OpenStatuses, candidate.Status):
		return false
	case candidate.CreatedAt.Before(now.Add(-window)):
		return false
	case !pricing.WithinTolerance(candidate.Total, total, MatchTolerance):
		return false
	}
	return SameCart(candidate.Lines, lines)
}

// FindDuplicate returns the most recent duplicate among candidates, or nil.
func FindDuplicate(candidates []orders.Order, lines []pricing.PricedLine, total float64, now time.Time, window time.Duration) *orders.Order {
	var best *orders.Order
	for i := range candidates {
		c := &candidates[i]
		if !Duplicate(*c, lines, total, now, window) {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) {
			best = c
		}
	}
	return best
}

// ReconcileTarget is the rewrite applied to existing when a duplicate
// submission arrives paying with method for total. COD forces ORDER_PLACED;
// a COD to online switch moves to PAYMENT_PENDING; other statuses stay.
func ReconcileTarget(existing orders.Order, method string, total float64) orders.Reconciliation {
	status := existing.Status
	switch {
	case method == orders.PaymentCOD:
		status = orders.StatusOrderPlaced
	case existing.PaymentMethod == orders.PaymentCOD && method == orders.PaymentOnline:
		status = orders.StatusPaymentPending
	}
	return orders.Reconciliation{
		PaymentMethod: method,
		Status:        status,
		Total:         pricing.Round2(total),
	}
}
