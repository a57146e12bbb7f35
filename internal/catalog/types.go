package catalog

import (
	"slices"
	"time"
)

// Product is the authoritative catalog row for pricing and stock.
type Product struct {
	ProductID      string  `dynamodbav:"product_id"` // PK
	StoreID        string  `dynamodbav:"store_id"`
	Name           string  `dynamodbav:"name"`
	Category       string  `dynamodbav:"category"`
	Price          float64 `dynamodbav:"price"`
	Quantity       int     `dynamodbav:"quantity"`
	InStock        bool    `dynamodbav:"in_stock"`
	CrashCashValue float64 `dynamodbav:"crash_cash_value,omitempty"` // per-unit reward override
}

// FlashSale is a time-boxed discount over a product set with its own stock pool.
type FlashSale struct {
	SaleID          string         `dynamodbav:"sale_id"` // PK
	Title           string         `dynamodbav:"title,omitempty"`
	IsActive        bool           `dynamodbav:"is_active"`
	StartTime       time.Time      `dynamodbav:"start_time"`
	EndTime         time.Time      `dynamodbav:"end_time"`
	ProductIDs      []string       `dynamodbav:"product_ids"`
	DiscountPercent float64        `dynamodbav:"discount_percent"`
	Remaining       map[string]int `dynamodbav:"remaining"` // productID -> units left in the sale pool
	Sold            int            `dynamodbav:"sold"`
}

// Qualifies reports whether the sale applies at now. Both window ends are inclusive.
func (f FlashSale) Qualifies(now time.Time) bool {
	return f.IsActive && !now.Before(f.StartTime) && !now.After(f.EndTime)
}

// Covers reports whether productID is part of the sale.
func (f FlashSale) Covers(productID string) bool {
	return slices.Contains(f.ProductIDs, productID)
}
