package validation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func validRequest() CheckoutRequest {
	return CheckoutRequest{
		Items: []Item{
			{ProductID: "P1", Quantity: 2, ClientPrice: 500},
			{ProductID: "P2", Quantity: 1},
		},
		PaymentMethod:     "upi",
		SelectedAddressID: "A1",
		AppliedCoupon:     &AppliedCoupon{Code: "FLAT100"},
	}
}

func TestCheckoutRequest_Valid(t *testing.T) {
	v := New()

	if err := v.Struct(validRequest()); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCheckoutRequest_Messages(t *testing.T) {
	v := New()

	cases := []struct {
		name   string
		mutate func(*CheckoutRequest)
		want   string
	}{
		{"no items", func(r *CheckoutRequest) { r.Items = nil }, "No items in order"},
		{"zero quantity", func(r *CheckoutRequest) { r.Items[1].Quantity = 0 }, "Invalid order item"},
		{"missing product", func(r *CheckoutRequest) { r.Items[0].ProductID = "" }, "Invalid order item"},
		{"negative client price", func(r *CheckoutRequest) { r.Items[0].ClientPrice = -1 }, "Invalid order item"},
		{"no payment method", func(r *CheckoutRequest) { r.PaymentMethod = "" }, "Payment method is required"},
		{"unknown payment method", func(r *CheckoutRequest) { r.PaymentMethod = "BARTER" }, "Unsupported payment method"},
		{"no address", func(r *CheckoutRequest) { r.SelectedAddressID = "" }, "Address is required"},
		{"coupon without code", func(r *CheckoutRequest) { r.AppliedCoupon = &AppliedCoupon{Source: "x"} }, "Invalid coupon"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			err := v.Struct(req)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if got := Message(err); got != tc.want {
				t.Fatalf("message = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIdempotencyHint(t *testing.T) {
	cases := map[string]string{
		`{"transactionId":" tx-1 ","timestamp":1715342400000}`: "tx-1",
		`{"timestamp":1715342400000}`:                          "1715342400000",
		`{"timestamp":"2026-05-10T12:00:00Z"}`:                 "2026-05-10T12:00:00Z",
		`{"timestamp":null}`:                                   "",
		`{}`:                                                   "",
	}
	for body, want := range cases {
		var req CheckoutRequest
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			t.Fatalf("unmarshal %s: %v", body, err)
		}
		if got := req.IdempotencyHint(); got != want {
			t.Fatalf("%s: hint = %q, want %q", body, got, want)
		}
	}
}

func TestBindAndValidate_WritesMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	for body, want := range map[string]string{
		`{"items":[],"paymentMethod":"COD","selectedAddressId":"A1"}`: "No items in order",
		`not json`: "Invalid request body",
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")

		var req CheckoutRequest
		if err := BindAndValidate(c, &req, v); err == nil {
			t.Fatalf("%s: expected error", body)
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", body, w.Code)
		}
		var resp map[string]string
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp["message"] != want {
			t.Fatalf("%s: message = %q, want %q", body, resp["message"], want)
		}
	}
}
