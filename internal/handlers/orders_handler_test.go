package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-crashcart-checkout/internal/checkout"
	"github.com/imrishuroy/go-crashcart-checkout/internal/orders"
	"github.com/imrishuroy/go-crashcart-checkout/internal/pricing"
	"github.com/imrishuroy/go-crashcart-checkout/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCheckout struct {
	got    checkout.Request
	result *checkout.Result
	err    error
	order  *orders.Order
}

func (s *stubCheckout) Submit(ctx context.Context, req checkout.Request) (*checkout.Result, error) {
	s.got = req
	return s.result, s.err
}

func (s *stubCheckout) Order(ctx context.Context, userID, orderID string) (*orders.Order, error) {
	if userID == "" {
		return nil, &checkout.Error{Kind: checkout.KindAuth, Message: "Unauthorized"}
	}
	if s.order == nil || s.order.UserID != userID || s.order.OrderID != orderID {
		return nil, &checkout.Error{Kind: checkout.KindNotFound, Message: "Order not found"}
	}
	return s.order, nil
}

type stubSettings struct {
	keys  []settings.Key
	calls int
}

func (s *stubSettings) Invalidate(ctx context.Context, keys ...settings.Key) error {
	s.calls++
	s.keys = keys
	return nil
}

func newRouter(co *stubCheckout, st *stubSettings) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterOrdersRoutes(r, HandlerConfig{Checkout: co, Settings: st, AdminToken: "secret"})
	return r
}

func do(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const checkoutBody = `{
	"items": [{"productId": "P2", "quantity": 1, "clientPrice": 50}],
	"paymentMethod": "UPI",
	"selectedAddressId": "A1",
	"appliedCoupon": {"code": "SCRATCH-7", "couponType": "flat", "discount": 30, "source": "scratch_card"},
	"timestamp": 1715342400000
}`

func TestPostOrders_Success(t *testing.T) {
	created := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	co := &stubCheckout{result: &checkout.Result{
		Order: orders.Order{
			OrderID:       "O1",
			Total:         170,
			Status:        orders.StatusPaymentPending,
			PaymentMethod: orders.PaymentOnline,
			CreatedAt:     created,
			Lines:         []pricing.PricedLine{{ProductID: "P2", Quantity: 1, Price: 160}},
		},
		CrashCashEarned: 16,
	}}
	r := newRouter(co, &stubSettings{})

	w := do(r, http.MethodPost, "/orders", checkoutBody, map[string]string{UserHeader: "U1", "X-Request-Id": "req-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "O1", resp.OrderID)
	assert.Equal(t, "O1", resp.Order.ID)
	assert.Equal(t, 170.0, resp.Order.Total)
	assert.Equal(t, 1, resp.Order.ItemsCount)
	assert.Equal(t, 16.0, resp.CrashCashEarned)
	assert.Equal(t, "Order placed successfully", resp.Message)

	assert.Equal(t, "U1", co.got.UserID)
	assert.Equal(t, "A1", co.got.AddressID)
	assert.Equal(t, "1715342400000", co.got.IdempotencyHint)
	assert.Equal(t, "req-1", co.got.CorrelationID)
	assert.Equal(t, 50.0, co.got.Items[0].ClientPrice)
	require.NotNil(t, co.got.Coupon)
	assert.Equal(t, "scratch_card", co.got.Coupon.Source)
}

func TestPostOrders_Errors(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		body    string
		err     error
		status  int
		message string
	}{
		{"missing user", nil, checkoutBody, nil, http.StatusUnauthorized, "Unauthorized"},
		{"no items", map[string]string{UserHeader: "U1"}, `{"items":[],"paymentMethod":"COD","selectedAddressId":"A1"}`, nil, http.StatusBadRequest, "No items in order"},
		{"no payment method", map[string]string{UserHeader: "U1"}, `{"items":[{"productId":"P1","quantity":1}],"selectedAddressId":"A1"}`, nil, http.StatusBadRequest, "Payment method is required"},
		{"stock", map[string]string{UserHeader: "U1"}, checkoutBody,
			&checkout.Error{Kind: checkout.KindInsufficientStock, Message: "Insufficient stock for Cable"}, http.StatusBadRequest, "Insufficient stock for Cable"},
		{"address", map[string]string{UserHeader: "U1"}, checkoutBody,
			&checkout.Error{Kind: checkout.KindNotFound, Message: "Address not found"}, http.StatusNotFound, "Address not found"},
		{"internal", map[string]string{UserHeader: "U1"}, checkoutBody,
			errors.New("dynamo timeout"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(&stubCheckout{err: tc.err}, &stubSettings{})
			w := do(r, http.MethodPost, "/orders", tc.body, tc.headers)
			assert.Equal(t, tc.status, w.Code)

			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.message, resp["message"])
		})
	}
}

func TestGetOrder(t *testing.T) {
	co := &stubCheckout{order: &orders.Order{OrderID: "O1", UserID: "U1", Total: 1000}}
	r := newRouter(co, &stubSettings{})

	w := do(r, http.MethodGet, "/orders/O1", "", map[string]string{UserHeader: "U1"})
	require.Equal(t, http.StatusOK, w.Code)
	var got orders.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "O1", got.OrderID)

	w = do(r, http.MethodGet, "/orders/O1", "", map[string]string{UserHeader: "U2"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/orders/O1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInvalidateSettings(t *testing.T) {
	st := &stubSettings{}
	r := newRouter(&stubCheckout{}, st)
	admin := map[string]string{"X-Admin-Token": "secret"}

	w := do(r, http.MethodPost, "/admin/settings/invalidate", `{"fees":true}`, map[string]string{"X-Admin-Token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, st.calls)

	w = do(r, http.MethodPost, "/admin/settings/invalidate", `{"fees":true,"coupons":["flat100"]}`, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []settings.Key{settings.FeesKey, settings.CouponKey("FLAT100")}, st.keys)

	w = do(r, http.MethodPost, "/admin/settings/invalidate", `{"all":true}`, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, st.keys)
	assert.Equal(t, 2, st.calls)

	w = do(r, http.MethodPost, "/admin/settings/invalidate", `{}`, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterOrdersRoutes(r, HandlerConfig{Checkout: &stubCheckout{}, Settings: &stubSettings{}})

	w := do(r, http.MethodPost, "/admin/settings/invalidate", `{"all":true}`, map[string]string{"X-Admin-Token": ""})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
