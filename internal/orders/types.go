package orders

import (
	"time"

	"github.com/imrishuroy/go-crashcart-checkout/internal/pricing"
)

// Order statuses
const (
	StatusOrderPlaced    = "ORDER_PLACED"
	StatusPaymentPending = "PAYMENT_PENDING"
	StatusProcessing     = "PROCESSING"
	StatusCompleted      = "COMPLETED"
	StatusCancelled      = "CANCELLED"
)

// OpenStatuses are the unpaid states a resubmitted checkout can be folded into.
var OpenStatuses = []string{StatusOrderPlaced, StatusPaymentPending, StatusProcessing}

// Stored payment methods. Every non-COD wire method maps to PaymentOnline.
const (
	PaymentCOD    = "COD"
	PaymentOnline = "ONLINE"
)

// CouponSnapshot freezes the coupon as applied at checkout.
type CouponSnapshot struct {
	Code     string  `json:"code" dynamodbav:"code"`
	Kind     string  `json:"kind" dynamodbav:"kind"`
	Source   string  `json:"source" dynamodbav:"source"`
	Discount float64 `json:"discount" dynamodbav:"discount"`
}

// Notes carries the price breakdown and the client idempotency hint.
type Notes struct {
	Subtotal       float64      `json:"subtotal" dynamodbav:"subtotal"`
	Fees           pricing.Fees `json:"fees" dynamodbav:"fees"`
	DeliveryCharge float64      `json:"deliveryCharge" dynamodbav:"delivery_charge"`
	CouponDiscount float64      `json:"couponDiscount" dynamodbav:"coupon_discount"`
	FreeDelivery   bool         `json:"freeDelivery" dynamodbav:"free_delivery"`
	IdempotencyKey string       `json:"idempotencyKey,omitempty" dynamodbav:"idempotency_key,omitempty"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID         string               `json:"id" dynamodbav:"order_id"`            // PK
	UserID          string               `json:"userId" dynamodbav:"user_id"`         // GSI hash
	CreatedAt       time.Time            `json:"createdAt" dynamodbav:"created_at"`   // GSI range
	StoreID         string               `json:"storeId" dynamodbav:"store_id"`
	AddressID       string               `json:"addressId" dynamodbav:"address_id"`
	Total           float64              `json:"total" dynamodbav:"total"`
	IsPaid          bool                 `json:"isPaid" dynamodbav:"is_paid"`
	PaymentMethod   string               `json:"paymentMethod" dynamodbav:"payment_method"` // COD | ONLINE
	Status          string               `json:"status" dynamodbav:"status"`
	Coupon          *CouponSnapshot      `json:"coupon,omitempty" dynamodbav:"coupon,omitempty"`
	Notes           Notes                `json:"notes" dynamodbav:"notes"`
	Lines           []pricing.PricedLine `json:"lines" dynamodbav:"lines"`
	CrashCashEarned float64              `json:"crashCashEarned" dynamodbav:"crash_cash_earned"`
	UpdatedAt       time.Time            `json:"updatedAt" dynamodbav:"updated_at"`
	Attempts        int                  `json:"-" dynamodbav:"attempts,omitempty"`
}

// ItemsCount is the total quantity across lines.
func (o Order) ItemsCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// Reconciliation is the in-place rewrite applied to an order matched by a resubmitted checkout.
type Reconciliation struct {
	PaymentMethod string
	Status        string
	Total         float64
}
