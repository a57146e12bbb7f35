package validation

import (
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// paymentMethods are the accepted wire values, matched case-insensitively.
var paymentMethods = map[string]bool{"COD": true, "CARD": true, "UPI": true, "WALLET": true}

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// payment methods arrive in mixed case, which oneof cannot express
	v.RegisterStructValidation(checkoutStructValidation, CheckoutRequest{})

	return v
}

func checkoutStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CheckoutRequest)

	method := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if method != "" && !paymentMethods[method] {
		sl.ReportError(req.PaymentMethod, "paymentMethod", "PaymentMethod", "payment_method", req.PaymentMethod)
	}
}
