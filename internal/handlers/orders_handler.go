package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-crashcart-checkout/internal/checkout"
	"github.com/imrishuroy/go-crashcart-checkout/internal/orders"
	"github.com/imrishuroy/go-crashcart-checkout/internal/pricing"
	"github.com/imrishuroy/go-crashcart-checkout/internal/settings"
	"github.com/imrishuroy/go-crashcart-checkout/internal/validation"
	"go.uber.org/zap"
)

// UserHeader carries the caller's user id, set by the upstream authenticator.
const UserHeader = "X-User-Id"

// Checkout is the order pipeline behind the routes.
type Checkout interface {
	Submit(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	Order(ctx context.Context, userID, orderID string) (*orders.Order, error)
}

// Invalidator drops cached configuration.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...settings.Key) error
}

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Checkout   Checkout
	Settings   Invalidator
	AdminToken string // empty disables the admin routes
	Logger     *zap.Logger
}

// OrderSummary is the order view returned after checkout.
type OrderSummary struct {
	ID            string    `json:"id"`
	Total         float64   `json:"total"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"paymentMethod"`
	CreatedAt     time.Time `json:"createdAt"`
	ItemsCount    int       `json:"itemsCount"`
}

// CheckoutResponse is the 200 body of POST /orders.
type CheckoutResponse struct {
	Success         bool         `json:"success"`
	OrderID         string       `json:"orderId"`
	Order           OrderSummary `json:"order"`
	CrashCashEarned float64      `json:"crashCashEarned"`
	Message         string       `json:"message"`
}

// RegisterOrdersRoutes registers routes for order API.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r.POST("/orders", func(c *gin.Context) {
		userID := c.GetHeader(UserHeader)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}

		var req validation.CheckoutRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		res, err := cfg.Checkout.Submit(c.Request.Context(), toCheckoutRequest(userID, c.GetHeader("X-Request-Id"), req))
		if err != nil {
			writeError(c, err)
			return
		}

		msg := "Order placed successfully"
		if res.Reconciled {
			msg = "Order already placed"
		}
		c.JSON(http.StatusOK, CheckoutResponse{
			Success: true,
			OrderID: res.Order.OrderID,
			Order: OrderSummary{
				ID:            res.Order.OrderID,
				Total:         res.Order.Total,
				Status:        res.Order.Status,
				PaymentMethod: res.Order.PaymentMethod,
				CreatedAt:     res.Order.CreatedAt,
				ItemsCount:    res.Order.ItemsCount(),
			},
			CrashCashEarned: res.CrashCashEarned,
			Message:         msg,
		})
	})

	r.GET("/orders/:id", func(c *gin.Context) {
		o, err := cfg.Checkout.Order(c.Request.Context(), c.GetHeader(UserHeader), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	})

	r.POST("/admin/settings/invalidate", func(c *gin.Context) {
		if !adminAuthorized(cfg.AdminToken, c.GetHeader("X-Admin-Token")) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		var body struct {
			Fees    bool     `json:"fees"`
			Coupons []string `json:"coupons"`
			All     bool     `json:"all"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
			return
		}

		var keys []settings.Key
		if !body.All {
			if body.Fees {
				keys = append(keys, settings.FeesKey)
			}
			for _, code := range body.Coupons {
				keys = append(keys, settings.CouponKey(code))
			}
			if len(keys) == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"message": "Nothing to invalidate"})
				return
			}
		}
		if err := cfg.Settings.Invalidate(c.Request.Context(), keys...); err != nil {
			logger.Error("settings invalidation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			return
		}
		logger.Info("settings invalidated", zap.Bool("all", body.All), zap.Int("keys", len(keys)))
		c.JSON(http.StatusOK, gin.H{"message": "Settings cache invalidated"})
	})
}

func toCheckoutRequest(userID, correlationID string, req validation.CheckoutRequest) checkout.Request {
	items := make([]pricing.CartLine, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, pricing.CartLine{ProductID: it.ProductID, Quantity: it.Quantity, ClientPrice: it.ClientPrice})
	}
	out := checkout.Request{
		UserID:          userID,
		Items:           items,
		PaymentMethod:   req.PaymentMethod,
		AddressID:       req.SelectedAddressID,
		IdempotencyHint: req.IdempotencyHint(),
		CorrelationID:   correlationID,
	}
	if ac := req.AppliedCoupon; ac != nil {
		out.Coupon = &pricing.ClientCoupon{Code: ac.Code, Type: ac.CouponType, Discount: ac.Discount, Source: ac.Source}
	}
	return out
}

func writeError(c *gin.Context, err error) {
	c.JSON(checkout.KindOf(err).HTTPStatus(), gin.H{"message": checkout.PublicMessage(err)})
}

func adminAuthorized(want, got string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
