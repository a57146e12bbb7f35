package pricing

// Totals is the trusted price breakdown of an order.
type Totals struct {
	Subtotal       float64 `json:"subtotal" dynamodbav:"subtotal"`
	Fees           Fees    `json:"fees" dynamodbav:"fees"` // post-waiver
	DeliveryCharge float64 `json:"deliveryCharge" dynamodbav:"delivery_charge"`
	CouponDiscount float64 `json:"couponDiscount" dynamodbav:"coupon_discount"`
	FreeDelivery   bool    `json:"freeDelivery" dynamodbav:"free_delivery"` // threshold reached
	Total          float64 `json:"total" dynamodbav:"total"`
}

// Assemble applies coupon waivers and the free-delivery threshold to fees
// and computes the final total. Both steps only zero fees, so applying one
// after the other is safe when they overlap. coupon may be nil.
func Assemble(subtotal float64, fees Fees, freeAbove float64, coupon *Coupon) Totals {
	t := Totals{Subtotal: Round2(subtotal), Fees: fees}

	if coupon != nil {
		waived := coupon.Waived()
		if waived[ChargeShipping] {
			t.Fees.Shipping = 0
		}
		if waived[ChargeConvenience] {
			t.Fees.Convenience = 0
		}
		if waived[ChargePlatform] {
			t.Fees.Platform = 0
		}
		t.CouponDiscount = coupon.Discount(subtotal)
	}

	// threshold uses the pre-discount subtotal
	if freeAbove > 0 && subtotal >= freeAbove {
		t.Fees = Fees{}
		t.FreeDelivery = true
	}

	t.DeliveryCharge = t.Fees.Sum()
	t.Total = Round2(dec(subtotal).Add(dec(t.DeliveryCharge)).Sub(dec(t.CouponDiscount)).InexactFloat64())
	return t
}
