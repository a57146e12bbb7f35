package checkout

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/imrishuroy/go-crashcart-checkout/internal/accounts"
	"github.com/imrishuroy/go-crashcart-checkout/internal/catalog"
	"github.com/imrishuroy/go-crashcart-checkout/internal/coupons"
	"github.com/imrishuroy/go-crashcart-checkout/internal/idempotency"
	"github.com/imrishuroy/go-crashcart-checkout/internal/notify"
	"github.com/imrishuroy/go-crashcart-checkout/internal/orders"
	"github.com/imrishuroy/go-crashcart-checkout/internal/pricing"
	"github.com/imrishuroy/go-crashcart-checkout/internal/rewards"
	"github.com/imrishuroy/go-crashcart-checkout/internal/settings"
)

// fakeCatalog mirrors catalog.Store: Reserve is all-or-nothing per line.
type fakeCatalog struct {
	mu        sync.Mutex
	products  map[string]catalog.Product
	sales     []catalog.FlashSale
	salesErr  error
	reserves  int
	releases  int
	failAfter int // fail the Nth reserve call with ErrInsufficientStock when > 0
}

func (f *fakeCatalog) Products(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]catalog.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeCatalog) ActiveFlashSales(ctx context.Context, now time.Time) ([]catalog.FlashSale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.salesErr != nil {
		return nil, f.salesErr
	}
	out := make([]catalog.FlashSale, 0, len(f.sales))
	for _, s := range f.sales {
		rem := map[string]int{}
		for k, v := range s.Remaining {
			rem[k] = v
		}
		s.Remaining = rem
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeCatalog) Reserve(ctx context.Context, productID string, qty int, saleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserves++
	if f.failAfter > 0 && f.reserves >= f.failAfter {
		return catalog.ErrInsufficientStock
	}
	p, ok := f.products[productID]
	if !ok || p.Quantity < qty {
		return catalog.ErrInsufficientStock
	}
	var sale *catalog.FlashSale
	if saleID != "" {
		for i := range f.sales {
			if f.sales[i].SaleID == saleID {
				sale = &f.sales[i]
			}
		}
		if sale == nil || sale.Remaining[productID] < qty {
			return catalog.ErrInsufficientStock
		}
		sale.Remaining[productID] -= qty
		sale.Sold += qty
	}
	p.Quantity -= qty
	p.InStock = p.Quantity > 0
	f.products[productID] = p
	return nil
}

func (f *fakeCatalog) Release(ctx context.Context, productID string, qty int, saleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	p := f.products[productID]
	p.Quantity += qty
	p.InStock = p.Quantity > 0
	f.products[productID] = p
	for i := range f.sales {
		if f.sales[i].SaleID == saleID {
			f.sales[i].Remaining[productID] += qty
			f.sales[i].Sold -= qty
		}
	}
	return nil
}

func (f *fakeCatalog) quantity(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Quantity
}

// db is the shared state behind fakeOrders and fakeIdem so the
// order-plus-key insert can be atomic.
type db struct {
	mu       sync.Mutex
	orders   map[string]orders.Order
	keys     map[string]idempotency.IdempotencyRecord
	queryErr error
	creates  int
}

func newDB() *db {
	return &db{orders: map[string]orders.Order{}, keys: map[string]idempotency.IdempotencyRecord{}}
}

type fakeOrders struct{ *db }

func (f fakeOrders) Create(ctx context.Context, o orders.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[o.OrderID]; ok {
		return errors.New("order exists")
	}
	o.UpdatedAt = o.CreatedAt
	f.orders[o.OrderID] = o
	f.creates++
	return nil
}

func (f fakeOrders) CreateWithIdempotencyTransaction(ctx context.Context, table string, item interface{}, o orders.Order, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := item.(idempotency.IdempotencyRecord)
	if _, ok := f.keys[rec.IdempotencyKey]; ok {
		return orders.ErrDuplicateKey
	}
	f.keys[rec.IdempotencyKey] = rec
	o.UpdatedAt = o.CreatedAt
	f.orders[o.OrderID] = o
	f.creates++
	return nil
}

func (f fakeOrders) Get(ctx context.Context, id string) (*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (f fakeOrders) FindRecentUnpaid(ctx context.Context, userID string, since time.Time) ([]orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []orders.Order
	for _, o := range f.orders {
		if o.UserID == userID && !o.CreatedAt.Before(since) && !o.IsPaid && slices.Contains(orders.OpenStatuses, o.Status) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f fakeOrders) Reconcile(ctx context.Context, id string, r orders.Reconciliation) (*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.IsPaid || !slices.Contains(orders.OpenStatuses, o.Status) {
		return nil, orders.ErrStatusMismatch
	}
	o.PaymentMethod = r.PaymentMethod
	o.Status = r.Status
	o.Total = r.Total
	o.UpdatedAt = time.Now()
	f.orders[id] = o
	return &o, nil
}

func (f fakeOrders) SetCrashCashEarned(ctx context.Context, id string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[id]
	o.CrashCashEarned = amount
	f.orders[id] = o
	return nil
}

func (f *db) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakeIdem struct{ *db }

func (f fakeIdem) TableName() string { return "idempotency" }

func (f fakeIdem) NewRecord(key, orderID string) idempotency.IdempotencyRecord {
	return idempotency.IdempotencyRecord{IdempotencyKey: key, OrderID: orderID, Status: idempotency.StatusInProgress}
}

func (f fakeIdem) Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.keys[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f fakeIdem) MarkDone(ctx context.Context, key, body string, status int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.keys[key]
	rec.Status = idempotency.StatusDone
	rec.ResponseBody = body
	rec.ResponseStatus = status
	f.keys[key] = rec
	return nil
}

type fakeAccounts struct {
	mu        sync.Mutex
	addresses map[string]accounts.Address
	cleared   []string
}

func (f *fakeAccounts) Address(ctx context.Context, userID, id string) (*accounts.Address, error) {
	a, ok := f.addresses[id]
	if !ok || a.UserID != userID {
		return nil, accounts.ErrAddressNotFound
	}
	return &a, nil
}

func (f *fakeAccounts) ClearCart(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, userID)
	return nil
}

type fakeCoupons struct {
	mu       sync.Mutex
	usage    map[string]*coupons.Usage
	recorded []string
}

func (f *fakeCoupons) Usage(ctx context.Context, userID, code string) (*coupons.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage[userID+"/"+pricing.NormalizeCode(code)], nil
}

func (f *fakeCoupons) Record(ctx context.Context, userID string, def pricing.CouponDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, userID+"/"+def.Code)
	return nil
}

// fakeRewards follows rewards.Issuer: one ledger row per order.
type fakeRewards struct {
	mu     sync.Mutex
	ledger map[string]rewards.Reward
	issued int
	err    error
}

func (f *fakeRewards) Rate() float64 { return rewards.DefaultRate }

func (f *fakeRewards) Issue(ctx context.Context, orderID, userID string, amount float64) (*rewards.Reward, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	id := rewards.ID(orderID, userID, rewards.SourceOrderPlaced)
	if r, ok := f.ledger[id]; ok {
		return &r, false, nil
	}
	if amount <= 0 {
		return nil, false, nil
	}
	r := rewards.Reward{RewardID: id, OrderID: orderID, UserID: userID, Source: rewards.SourceOrderPlaced, Amount: amount}
	f.ledger[id] = r
	f.issued++
	return &r, true, nil
}

type fakeSettings struct {
	schedule    pricing.FeeSchedule
	scheduleErr error
	coupons     map[string]pricing.CouponDefinition
	invalidated []settings.Key
	mu          sync.Mutex
}

func (f *fakeSettings) FeeSchedule(ctx context.Context) (pricing.FeeSchedule, error) {
	return f.schedule, f.scheduleErr
}

func (f *fakeSettings) Coupon(ctx context.Context, code string) (*pricing.CouponDefinition, error) {
	d, ok := f.coupons[pricing.NormalizeCode(code)]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (f *fakeSettings) Invalidate(ctx context.Context, keys ...settings.Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, keys...)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.OrderPlaced
	err    error
}

func (f *fakeNotifier) OrderPlaced(ctx context.Context, ev notify.OrderPlaced) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeNotifier) Close() error { return nil }

// mutexLocker is an in-process Locker keyed by string.
type mutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *mutexLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}
