package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/go-crashcart-checkout/internal/catalog"
	"github.com/shopspring/decimal"
)

// ErrUnknownProduct is returned when a cart line names a product the catalog does not have.
var ErrUnknownProduct = errors.New("product not found")

// CartLine is one requested product. ClientPrice is what the client claims
// the unit costs; it is carried for logging only and never priced.
type CartLine struct {
	ProductID   string
	Quantity    int
	ClientPrice float64
}

// PricedLine is a cart line priced from the catalog.
type PricedLine struct {
	ProductID       string  `json:"productId" dynamodbav:"product_id"`
	StoreID         string  `json:"storeId" dynamodbav:"store_id"`
	Name            string  `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Category        string  `json:"category,omitempty" dynamodbav:"category,omitempty"`
	Quantity        int     `json:"quantity" dynamodbav:"quantity"`
	CatalogPrice    float64 `json:"catalogPrice" dynamodbav:"catalog_price"`
	Price           float64 `json:"price" dynamodbav:"price"` // trusted unit price
	DiscountPercent float64 `json:"discountPercent,omitempty" dynamodbav:"discount_percent,omitempty"`
	SaleID          string  `json:"saleId,omitempty" dynamodbav:"sale_id,omitempty"`
	CrashCashValue  float64 `json:"-" dynamodbav:"crash_cash_value,omitempty"`
}

// LineTotal is Price * Quantity.
func (l PricedLine) LineTotal() float64 {
	return dec(l.Price).Mul(decimal.NewFromInt(int64(l.Quantity))).InexactFloat64()
}

// SalePrice applies a percentage discount and rounds to a whole currency unit.
func SalePrice(catalogPrice, discountPercent float64) float64 {
	factor := decimal.NewFromInt(1).Sub(dec(discountPercent).Div(decimal.NewFromInt(100)))
	return dec(catalogPrice).Mul(factor).Round(0).InexactFloat64()
}

// BestSales maps each product to the qualifying sale with the largest
// discount. Ties keep the sale listed first.
func BestSales(sales []catalog.FlashSale, productIDs []string, now time.Time) map[string]catalog.FlashSale {
	best := make(map[string]catalog.FlashSale)
	for _, sale := range sales {
		if !sale.Qualifies(now) {
			continue
		}
		for _, id := range productIDs {
			if !sale.Covers(id) {
				continue
			}
			if cur, ok := best[id]; !ok || sale.DiscountPercent > cur.DiscountPercent {
				best[id] = sale
			}
		}
	}
	return best
}

// MergeLines folds repeated product ids into one line, keeping first-seen order.
func MergeLines(lines []CartLine) []CartLine {
	idx := make(map[string]int, len(lines))
	out := make([]CartLine, 0, len(lines))
	for _, l := range lines {
		if i, ok := idx[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

// PriceLines computes the trusted unit price of every line and validates
// stock against both the product and, for sale lines, the sale pool.
func PriceLines(lines []CartLine, products map[string]catalog.Product, sales []catalog.FlashSale, now time.Time) ([]PricedLine, error) {
	lines = MergeLines(lines)
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	best := BestSales(sales, ids, now)

	priced := make([]PricedLine, 0, len(lines))
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, l.ProductID)
		}
		if p.Quantity < l.Quantity {
			return nil, fmt.Errorf("%w: %s has %d, requested %d", catalog.ErrInsufficientStock, p.Name, p.Quantity, l.Quantity)
		}

		pl := PricedLine{
			ProductID:      p.ProductID,
			StoreID:        p.StoreID,
			Name:           p.Name,
			Category:       p.Category,
			Quantity:       l.Quantity,
			CatalogPrice:   p.Price,
			Price:          p.Price,
			CrashCashValue: p.CrashCashValue,
		}
		if sale, ok := best[l.ProductID]; ok {
			if left := sale.Remaining[l.ProductID]; left < l.Quantity {
				return nil, fmt.Errorf("%w: flash sale %s has %d of %s, requested %d", catalog.ErrInsufficientStock, sale.SaleID, left, p.Name, l.Quantity)
			}
			pl.Price = SalePrice(p.Price, sale.DiscountPercent)
			pl.DiscountPercent = sale.DiscountPercent
			pl.SaleID = sale.SaleID
		}
		priced = append(priced, pl)
	}
	return priced, nil
}

// Subtotal sums the trusted line totals.
func Subtotal(lines []PricedLine) float64 {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(dec(l.Price).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum.InexactFloat64()
}

// FeeLines projects priced lines for fee resolution.
func FeeLines(lines []PricedLine) []FeeLine {
	out := make([]FeeLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, FeeLine{ProductID: l.ProductID, Category: l.Category})
	}
	return out
}
