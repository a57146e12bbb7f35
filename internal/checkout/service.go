package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/go-crashcart-checkout/internal/accounts"
	"github.com/imrishuroy/go-crashcart-checkout/internal/catalog"
	"github.com/imrishuroy/go-crashcart-checkout/internal/coupons"
	"github.com/imrishuroy/go-crashcart-checkout/internal/idempotency"
	"github.com/imrishuroy/go-crashcart-checkout/internal/metrics"
	"github.com/imrishuroy/go-crashcart-checkout/internal/notify"
	"github.com/imrishuroy/go-crashcart-checkout/internal/orders"
	"github.com/imrishuroy/go-crashcart-checkout/internal/pricing"
	"github.com/imrishuroy/go-crashcart-checkout/internal/rewards"
	"github.com/imrishuroy/go-crashcart-checkout/internal/settings"
	"go.uber.org/zap"
)

// Catalog is the product and flash-sale store.
type Catalog interface {
	Products(ctx context.Context, ids []string) (map[string]catalog.Product, error)
	ActiveFlashSales(ctx context.Context, now time.Time) ([]catalog.FlashSale, error)
	Reserve(ctx context.Context, productID string, qty int, saleID string) error
	Release(ctx context.Context, productID string, qty int, saleID string) error
}

// OrderStore persists orders.
type OrderStore interface {
	Create(ctx context.Context, order orders.Order) error
	CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, order orders.Order, ttlWindow time.Duration) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	FindRecentUnpaid(ctx context.Context, userID string, since time.Time) ([]orders.Order, error)
	Reconcile(ctx context.Context, orderID string, r orders.Reconciliation) (*orders.Order, error)
	SetCrashCashEarned(ctx context.Context, orderID string, amount float64) error
}

// IdempotencyStore binds client idempotency hints to orders.
type IdempotencyStore interface {
	TableName() string
	NewRecord(key, orderID string) idempotency.IdempotencyRecord
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
}

// Accounts resolves addresses and clears carts.
type Accounts interface {
	Address(ctx context.Context, userID, addressID string) (*accounts.Address, error)
	ClearCart(ctx context.Context, userID string) error
}

// CouponUsage tracks per-user coupon redemptions.
type CouponUsage interface {
	Usage(ctx context.Context, userID, code string) (*coupons.Usage, error)
	Record(ctx context.Context, userID string, def pricing.CouponDefinition) error
}

// RewardIssuer credits CrashCash at most once per order.
type RewardIssuer interface {
	Issue(ctx context.Context, orderID, userID string, amount float64) (*rewards.Reward, bool, error)
	Rate() float64
}

// Locker serializes checkouts of one user.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Deps are the collaborators of a Service. Locker, Notifier and Metrics are optional.
type Deps struct {
	Catalog     Catalog
	Orders      OrderStore
	Idempotency IdempotencyStore
	Accounts    Accounts
	Coupons     CouponUsage
	Rewards     RewardIssuer
	Settings    settings.Provider
	Locker      Locker
	Notifier    notify.Notifier
	Metrics     *metrics.Recorder
}

// Options tune the pipeline.
type Options struct {
	DedupeWindow         time.Duration
	IdempotencyTTL       time.Duration
	TrustedCouponSources []string
}

// Service turns checkout submissions into priced orders.
type Service struct {
	catalog  Catalog
	orders   OrderStore
	idem     IdempotencyStore
	accounts Accounts
	coupons  CouponUsage
	rewards  RewardIssuer
	settings settings.Provider
	locker   Locker
	notifier notify.Notifier
	metrics  *metrics.Recorder
	opts     Options
	logger   *zap.Logger
	nowFunc  func() time.Time
	newID    func() string
}

// New creates a Service.
func New(d Deps, opts Options, logger *zap.Logger) *Service {
	if opts.DedupeWindow <= 0 {
		opts.DedupeWindow = 24 * time.Hour
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notify.Noop{Logger: logger}
	}
	return &Service{
		catalog:  d.Catalog,
		orders:   d.Orders,
		idem:     d.Idempotency,
		accounts: d.Accounts,
		coupons:  d.Coupons,
		rewards:  d.Rewards,
		settings: d.Settings,
		locker:   d.Locker,
		notifier: notifier,
		metrics:  d.Metrics,
		opts:     opts,
		logger:   logger,
		nowFunc:  time.Now,
		newID:    uuid.NewString,
	}
}

// Request is one checkout submission. Client prices and totals are never trusted.
type Request struct {
	UserID        string
	Items         []pricing.CartLine
	PaymentMethod string // COD, CARD, UPI or WALLET
	AddressID     string
	Coupon        *pricing.ClientCoupon
	// IdempotencyHint is the client's transaction id or submission timestamp.
	IdempotencyHint string
	CorrelationID   string
}

// Result is the order a submission resolved to.
type Result struct {
	Order           orders.Order
	Totals          pricing.Totals
	CrashCashEarned float64
	// Reconciled is set when the submission matched an existing order.
	Reconciled bool
}

// quote is a fully priced cart.
type quote struct {
	lines   []pricing.PricedLine
	storeID string
	totals  pricing.Totals
	coupon  *pricing.Coupon
}

// Submit runs the checkout pipeline. Errors are *Error values.
func (s *Service) Submit(ctx context.Context, req Request) (*Result, error) {
	res, err := s.submit(ctx, req)
	if err != nil {
		kind := KindOf(err)
		fields := []zap.Field{
			zap.String("user_id", req.UserID),
			zap.String("address_id", req.AddressID),
			zap.String("correlation_id", req.CorrelationID),
			zap.Stringer("kind", kind),
			zap.Error(err),
		}
		if kind == KindInternal {
			s.logger.Error("checkout failed", fields...)
		} else {
			s.logger.Info("checkout rejected", fields...)
		}
		s.metrics.Count(ctx, metrics.CheckoutFailures, "Kind", kind.String())
		return nil, err
	}
	return res, nil
}

func (s *Service) submit(ctx context.Context, req Request) (*Result, error) {
	method, err := validate(req)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()

	if _, err := s.accounts.Address(ctx, req.UserID, req.AddressID); err != nil {
		if errors.Is(err, accounts.ErrAddressNotFound) {
			return nil, newError(KindNotFound, "Address not found", err)
		}
		return nil, newError(KindInternal, "load address", err)
	}

	q, err := s.quote(ctx, req, now)
	if err != nil {
		return nil, err
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, req.UserID)
		if err != nil {
			s.logger.Warn("checkout lock unavailable, continuing unserialized",
				zap.String("user_id", req.UserID), zap.Error(err))
		} else {
			defer release()
		}
	}

	key := idempotencyKey(req.UserID, req.IdempotencyHint)
	if key != "" {
		res, ok, err := s.replay(ctx, req.UserID, key, method, q)
		if err != nil {
			return nil, err
		}
		if ok {
			return res, nil
		}
	}

	candidates, err := s.orders.FindRecentUnpaid(ctx, req.UserID, now.Add(-s.opts.DedupeWindow))
	if err != nil {
		s.logger.Error("duplicate-order lookup failed, creating new order",
			zap.String("user_id", req.UserID), zap.Error(err))
	} else if dup := FindDuplicate(candidates, q.lines, q.totals.Total, now, s.opts.DedupeWindow); dup != nil {
		return s.reconcile(ctx, *dup, method, q)
	}

	return s.create(ctx, req, key, method, q, now)
}

func validate(req Request) (string, error) {
	if req.UserID == "" {
		return "", newError(KindAuth, "Unauthorized", nil)
	}
	if len(req.Items) == 0 {
		return "", newError(KindValidation, "No items in order", nil)
	}
	for _, it := range req.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return "", newError(KindValidation, "Invalid order item", nil)
		}
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return "", newError(KindValidation, "Payment method is required", nil)
	}
	method, ok := StoredPaymentMethod(req.PaymentMethod)
	if !ok {
		return "", newError(KindValidation, "Unsupported payment method", nil)
	}
	if req.AddressID == "" {
		return "", newError(KindValidation, "Address is required", nil)
	}
	return method, nil
}

// quote prices the cart from the catalog, fee schedule and coupon store.
func (s *Service) quote(ctx context.Context, req Request, now time.Time) (quote, error) {
	lines := pricing.MergeLines(req.Items)
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}

	products, err := s.catalog.Products(ctx, ids)
	if err != nil {
		return quote{}, newError(KindInternal, "load products", err)
	}
	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			return quote{}, newError(KindNotFound, "Product not found", errors.New(id))
		}
		if p.StoreID == "" {
			return quote{}, newError(KindNotFound, "Store not found", errors.New(id))
		}
	}

	sales, err := s.catalog.ActiveFlashSales(ctx, now)
	if err != nil {
		s.logger.Warn("flash sales unavailable, pricing at catalog price", zap.Error(err))
		sales = nil
	}

	priced, err := pricing.PriceLines(lines, products, sales, now)
	if err != nil {
		if errors.Is(err, catalog.ErrInsufficientStock) {
			return quote{}, newError(KindInsufficientStock, "Insufficient stock", err)
		}
		return quote{}, newError(KindInternal, "price lines", err)
	}
	for _, l := range priced {
		for _, in := range req.Items {
			if in.ProductID == l.ProductID && in.ClientPrice > 0 && !pricing.WithinTolerance(in.ClientPrice, l.Price, 0.01) {
				s.logger.Info("client price ignored",
					zap.String("product_id", l.ProductID),
					zap.Float64("client_price", in.ClientPrice),
					zap.Float64("price", l.Price))
				break
			}
		}
	}

	schedule, err := s.settings.FeeSchedule(ctx)
	if err != nil {
		s.logger.Warn("fee schedule unavailable, using defaults", zap.Error(err))
		schedule = pricing.DefaultFeeSchedule()
	}
	fees := schedule.ResolveFees(pricing.FeeLines(priced))
	subtotal := pricing.Subtotal(priced)

	coupon := s.resolveCoupon(ctx, req.UserID, req.Coupon, subtotal, now)

	return quote{
		lines:   priced,
		storeID: priced[0].StoreID,
		totals:  pricing.Assemble(subtotal, fees, schedule.FreeAbove, coupon),
		coupon:  coupon,
	}, nil
}

// resolveCoupon returns the coupon to apply, or nil. Every failure drops the
// coupon rather than the order.
func (s *Service) resolveCoupon(ctx context.Context, userID string, hint *pricing.ClientCoupon, subtotal float64, now time.Time) *pricing.Coupon {
	if hint == nil || strings.TrimSpace(hint.Code) == "" {
		return nil
	}
	log := s.logger.With(zap.String("user_id", userID), zap.String("coupon", pricing.NormalizeCode(hint.Code)))

	def, err := s.settings.Coupon(ctx, hint.Code)
	if err != nil {
		log.Warn("coupon lookup failed, ignoring coupon", zap.Error(err))
		return nil
	}
	if def == nil {
		c, err := pricing.FromClient(*hint, s.opts.TrustedCouponSources)
		if err != nil {
			log.Info("coupon ignored", zap.Error(err))
			return nil
		}
		return &c
	}

	if err := def.Eligible(now, subtotal); err != nil {
		log.Info("coupon not eligible", zap.Error(err))
		return nil
	}
	usage, err := s.coupons.Usage(ctx, userID, def.Code)
	if err != nil {
		log.Warn("coupon usage lookup failed, ignoring coupon", zap.Error(err))
		return nil
	}
	if err := coupons.CheckUser(*def, usage); err != nil {
		log.Info("coupon not eligible", zap.Error(err))
		return nil
	}
	c, err := pricing.FromDefinition(*def)
	if err != nil {
		log.Warn("coupon definition invalid", zap.Error(err))
		return nil
	}
	return &c
}

func idempotencyKey(userID, hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ""
	}
	return "checkout#" + userID + "#" + hint
}

// replay resolves a submission whose idempotency hint was seen before. The
// bound order is only reconciled when the cart still matches it; a key reused
// for a different cart is rejected and the order is left untouched.
func (s *Service) replay(ctx context.Context, userID, key, method string, q quote) (*Result, bool, error) {
	rec, err := s.idem.Get(ctx, key)
	if err != nil {
		s.logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	if rec == nil || rec.OrderID == "" {
		return nil, false, nil
	}
	existing, err := s.orders.Get(ctx, rec.OrderID)
	if err != nil || existing == nil || existing.UserID != userID {
		s.logger.Warn("idempotency record without usable order",
			zap.String("key", key), zap.String("order_id", rec.OrderID), zap.Error(err))
		return nil, false, nil
	}
	if !SameCart(existing.Lines, q.lines) || !pricing.WithinTolerance(existing.Total, q.totals.Total, MatchTolerance) {
		s.logger.Warn("idempotency key reused with a different cart",
			zap.String("key", key),
			zap.String("order_id", existing.OrderID),
			zap.Float64("order_total", existing.Total),
			zap.Float64("cart_total", q.totals.Total))
		return nil, false, newError(KindValidation, "Idempotency key reused with a different cart", nil)
	}
	res, err := s.reconcile(ctx, *existing, method, q)
	if err != nil {
		s.logger.Error("reconcile replayed order failed", zap.String("order_id", existing.OrderID), zap.Error(err))
		return &Result{Order: *existing, Totals: totalsOf(*existing), CrashCashEarned: existing.CrashCashEarned, Reconciled: true}, true, nil
	}
	return res, true, nil
}

// reconcile folds a duplicate submission into existing: payment method,
// status and total are rewritten in place and a missing reward is backfilled.
func (s *Service) reconcile(ctx context.Context, existing orders.Order, method string, q quote) (*Result, error) {
	log := s.logger.With(zap.String("order_id", existing.OrderID), zap.String("user_id", existing.UserID))

	updated, err := s.orders.Reconcile(ctx, existing.OrderID, ReconcileTarget(existing, method, q.totals.Total))
	switch {
	case errors.Is(err, orders.ErrStatusMismatch):
		// paid or closed since it was read; report it unchanged
		log.Info("duplicate order no longer open, returning as is")
		updated = &existing
	case err != nil:
		return nil, newError(KindInternal, "reconcile order", err)
	}

	earned := s.issueReward(ctx, *updated, rewards.Amount(updated.Lines, updated.Notes.Subtotal, s.rewards.Rate()))
	updated.CrashCashEarned = earned

	log.Info("duplicate checkout reconciled",
		zap.String("payment_method", updated.PaymentMethod),
		zap.String("status", updated.Status))
	s.metrics.Count(ctx, metrics.OrdersReconciled)

	return &Result{Order: *updated, Totals: totalsOf(*updated), CrashCashEarned: earned, Reconciled: true}, nil
}

func (s *Service) create(ctx context.Context, req Request, key, method string, q quote, now time.Time) (*Result, error) {
	held, err := s.reserve(ctx, q.lines)
	if err != nil {
		return nil, err
	}

	order := orders.Order{
		OrderID:       s.newID(),
		UserID:        req.UserID,
		StoreID:       q.storeID,
		AddressID:     req.AddressID,
		Total:         q.totals.Total,
		PaymentMethod: method,
		Status:        InitialStatus(method),
		Coupon:        snapshot(q.coupon, q.totals.CouponDiscount),
		Notes: orders.Notes{
			Subtotal:       q.totals.Subtotal,
			Fees:           q.totals.Fees,
			DeliveryCharge: q.totals.DeliveryCharge,
			CouponDiscount: q.totals.CouponDiscount,
			FreeDelivery:   q.totals.FreeDelivery,
			IdempotencyKey: key,
		},
		Lines:     q.lines,
		CreatedAt: now,
	}

	if key == "" {
		err = s.orders.Create(ctx, order)
	} else {
		err = s.orders.CreateWithIdempotencyTransaction(ctx, s.idem.TableName(), s.idem.NewRecord(key, order.OrderID), order, s.opts.IdempotencyTTL)
	}
	if err != nil {
		s.release(ctx, held)
		if errors.Is(err, orders.ErrDuplicateKey) {
			// a concurrent twin won the key
			res, ok, rerr := s.replay(ctx, req.UserID, key, method, q)
			if rerr != nil {
				return nil, rerr
			}
			if ok {
				return res, nil
			}
		}
		return nil, newError(KindInternal, "insert order", err)
	}

	log := s.logger.With(zap.String("order_id", order.OrderID), zap.String("user_id", order.UserID))
	log.Info("order created",
		zap.Float64("total", order.Total),
		zap.String("payment_method", order.PaymentMethod),
		zap.Int("lines", len(order.Lines)))

	s.afterCreate(ctx, &order, q, key, req.CorrelationID)
	s.metrics.Count(ctx, metrics.OrdersCreated)

	return &Result{Order: order, Totals: q.totals, CrashCashEarned: order.CrashCashEarned}, nil
}

// afterCreate runs the best-effort side effects of a new order. Failures are logged only.
func (s *Service) afterCreate(ctx context.Context, order *orders.Order, q quote, key, correlationID string) {
	log := s.logger.With(zap.String("order_id", order.OrderID), zap.String("user_id", order.UserID))

	if q.coupon != nil && q.coupon.Definition != nil {
		if err := s.coupons.Record(ctx, order.UserID, *q.coupon.Definition); err != nil {
			log.Warn("coupon usage not recorded", zap.String("coupon", q.coupon.Code), zap.Error(err))
		}
		if err := s.settings.Invalidate(ctx, settings.CouponKey(q.coupon.Code)); err != nil {
			log.Warn("coupon cache not invalidated", zap.String("coupon", q.coupon.Code), zap.Error(err))
		}
	}

	if err := s.accounts.ClearCart(ctx, order.UserID); err != nil {
		log.Warn("cart not cleared", zap.Error(err))
	}

	order.CrashCashEarned = s.issueReward(ctx, *order, rewards.Amount(q.lines, q.totals.Subtotal, s.rewards.Rate()))

	if key != "" {
		body, err := json.Marshal(map[string]interface{}{"orderId": order.OrderID, "status": order.Status})
		if err != nil {
			log.Warn("idempotency response not encoded", zap.Error(err))
		}
		if err := s.idem.MarkDone(ctx, key, string(body), http.StatusOK); err != nil {
			log.Warn("idempotency record not completed", zap.Error(err))
		}
	}

	err := s.notifier.OrderPlaced(ctx, notify.OrderPlaced{
		OrderID:         order.OrderID,
		UserID:          order.UserID,
		IdempotencyKey:  key,
		Total:           order.Total,
		PaymentMethod:   order.PaymentMethod,
		Status:          order.Status,
		ItemsCount:      order.ItemsCount(),
		CrashCashEarned: order.CrashCashEarned,
		CreatedAt:       order.CreatedAt,
		CorrelationID:   correlationID,
	})
	if err != nil {
		log.Warn("order notification failed", zap.Error(err))
	}
}

// issueReward credits the order's CrashCash unless already credited and
// returns the amount on the ledger, zero on failure.
func (s *Service) issueReward(ctx context.Context, order orders.Order, amount float64) float64 {
	log := s.logger.With(zap.String("order_id", order.OrderID), zap.String("user_id", order.UserID))

	r, created, err := s.rewards.Issue(ctx, order.OrderID, order.UserID, amount)
	if err != nil {
		log.Warn("crashcash not issued", zap.Error(err))
		return 0
	}
	if r == nil {
		return 0
	}
	if created || order.CrashCashEarned != r.Amount {
		if err := s.orders.SetCrashCashEarned(ctx, order.OrderID, r.Amount); err != nil {
			log.Warn("crashcash amount not stored on order", zap.Error(err))
		}
	}
	return r.Amount
}

// Order returns the user's order by id.
func (s *Service) Order(ctx context.Context, userID, orderID string) (*orders.Order, error) {
	if userID == "" {
		return nil, newError(KindAuth, "Unauthorized", nil)
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, newError(KindInternal, "load order", err)
	}
	if o == nil || o.UserID != userID {
		return nil, newError(KindNotFound, "Order not found", nil)
	}
	return o, nil
}

func snapshot(c *pricing.Coupon, discount float64) *orders.CouponSnapshot {
	if c == nil {
		return nil
	}
	return &orders.CouponSnapshot{
		Code:     c.Code,
		Kind:     c.Kind.String(),
		Source:   c.Source,
		Discount: discount,
	}
}

func totalsOf(o orders.Order) pricing.Totals {
	return pricing.Totals{
		Subtotal:       o.Notes.Subtotal,
		Fees:           o.Notes.Fees,
		DeliveryCharge: o.Notes.DeliveryCharge,
		CouponDiscount: o.Notes.CouponDiscount,
		FreeDelivery:   o.Notes.FreeDelivery,
		Total:          o.Total,
	}
}
