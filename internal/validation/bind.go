package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds JSON body into `out` and runs validation.
// If validation fails, it writes a 400 {message} response and returns an error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": Message(err)})
		return err
	}
	return nil
}

// Message is the client-facing text for the first validation failure.
func Message(err error) string {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "Invalid request body"
	}
	fe := ve[0]
	switch fe.StructField() {
	case "Items":
		return "No items in order"
	case "ProductID", "Quantity", "ClientPrice":
		return "Invalid order item"
	case "PaymentMethod":
		if fe.Tag() == "required" {
			return "Payment method is required"
		}
		return "Unsupported payment method"
	case "SelectedAddressID":
		return "Address is required"
	case "Code", "Discount":
		return "Invalid coupon"
	}
	return "Invalid request body"
}
