package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/money"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/shipping"
	"github.com/noah-isme/toko-checkout/internal/tax"
	"github.com/noah-isme/toko-checkout/internal/tenant"
)

var testTenant = uuid.MustParse("a3c1e0f4-1f7e-4c55-9d0e-9b7f2f8c4e10")

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type fakeCarts struct {
	mu        sync.Mutex
	cart      *cart.Cart
	loadErr   error
	commitErr error
	committed int
}

func newFakeCarts(items ...cart.Item) *fakeCarts {
	return &fakeCarts{cart: &cart.Cart{
		ID:          uuid.New(),
		TenantID:    testTenant,
		CustomerRef: "cust-1",
		Status:      cart.StatusOpen,
		Items:       items,
	}}
}

func (f *fakeCarts) Load(_ context.Context, _ uuid.UUID, _ string) (cart.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return cart.Cart{}, f.loadErr
	}
	if f.cart == nil {
		return cart.Cart{}, cart.ErrNotFound
	}
	out := *f.cart
	out.Items = append([]cart.Item(nil), f.cart.Items...)
	return out, nil
}

func (f *fakeCarts) Quote(_ context.Context, c cart.Cart) (pricing.Result, error) {
	return pricing.Compute(c.TenantID, c.Lines(), pricing.Options{
		ApprovedDiscount: c.Discount,
		RoundTotals:      true,
		Shipping: &shipping.Config{
			FreeShippingEnabled:   true,
			FreeShippingThreshold: dec("10000"),
			HighVolumeThreshold:   15,
			StandardRate:          dec("20"),
			HighVolumeRate:        dec("25"),
		},
		Tax:           &tax.Config{Rate: money.Ptr(dec("18")), HomeState: "KA"},
		CustomerState: "KA",
	}), nil
}

func (f *fakeCarts) MarkCommitted(_ context.Context, _ cart.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed++
	f.cart.Items = nil
	f.cart.Discount = nil
	f.cart.Version++
	f.cart.Status = cart.StatusCommitted
	return nil
}

type fakeOrders struct {
	mu        sync.Mutex
	orders    []order.Order
	createErr error
}

func (f *fakeOrders) LatestOrder(_ context.Context, tenantID uuid.UUID, customerRef string) (order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.orders) - 1; i >= 0; i-- {
		o := f.orders[i]
		if o.TenantID == tenantID && o.CustomerRef == customerRef && o.Status != order.StatusCancelled {
			return o, nil
		}
	}
	return order.Order{}, order.ErrNotFound
}

func (f *fakeOrders) CreateOrder(_ context.Context, o order.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.orders {
		if existing.TenantID == o.TenantID && existing.CartID == o.CartID && existing.CartVersion == o.CartVersion {
			return order.ErrDuplicate
		}
	}
	f.orders = append(f.orders, o)
	return nil
}

func (f *fakeOrders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recordingNotifier) Name() string { return "recorder" }

func (r *recordingNotifier) Notify(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func catalogItem(price string, qty int) cart.Item {
	return cart.Item{
		ID:       uuid.New(),
		Product:  pricing.Product{ID: uuid.New(), Name: "item-" + price, CatalogPrice: dec(price)},
		Quantity: qty,
	}
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestService(carts *fakeCarts, orders *fakeOrders, notifier *recordingNotifier) (*Service, *clock) {
	clk := &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	logger := zerolog.Nop()
	svc := &Service{
		Carts:  carts,
		Orders: orders,
		Events: &events.Bus{Notifiers: []events.Notifier{notifier}},
		Logger: &logger,
		Now:    clk.Now,
	}
	return svc, clk
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	require.Equal(t, code, appErr.Code)
}

func TestCheckoutWorkedExampleWithAcceptedVolumeOffer(t *testing.T) {
	carts := newFakeCarts(catalogItem("100", 12))
	carts.cart.Discount = &discount.Approved{Source: discount.SourceVolume, Percent: dec("2"), Slab: "11-25"}
	orders := &fakeOrders{}
	notifier := &recordingNotifier{}
	svc, _ := newTestService(carts, orders, notifier)

	conf, err := svc.Checkout(context.Background(), testTenant, "cust-1")
	require.NoError(t, err)
	require.Equal(t, "1671.00", conf.GrandTotal)
	require.Equal(t, order.StatusPlaced, conf.Status)
	require.Equal(t, 1, orders.count())

	placed := orders.orders[0]
	require.True(t, placed.DiscountAmount.Equal(dec("24")))
	require.Equal(t, discount.SourceVolume, placed.DiscountSource)
	require.True(t, placed.Items[0].PaidUnitPrice.Equal(dec("98")))
	require.True(t, placed.Items[0].LineTotal.Equal(dec("1176")))
	require.True(t, placed.RoundingAdjustment.Equal(dec("0.12")))

	require.Equal(t, 1, carts.committed)
	require.Empty(t, carts.cart.Items)
	require.Len(t, notifier.events, 1)
	require.Equal(t, events.TopicOrderCreated, notifier.events[0].Topic)
	require.Equal(t, conf.OrderID, notifier.events[0].AggregateID)
}

func TestCheckoutIgnoresVolumeWhenNotAccepted(t *testing.T) {
	carts := newFakeCarts(catalogItem("100", 12))
	orders := &fakeOrders{}
	svc, _ := newTestService(carts, orders, &recordingNotifier{})

	conf, err := svc.Checkout(context.Background(), testTenant, "cust-1")
	require.NoError(t, err)
	require.True(t, conf.Order.DiscountAmount.IsZero())
	require.True(t, conf.Order.DiscountedSubtotal.Equal(dec("1200")))
}

func TestCheckoutDropsVolumeOfferAfterCartShrinks(t *testing.T) {
	carts := newFakeCarts(catalogItem("100", 1))
	carts.cart.Discount = &discount.Approved{Source: discount.SourceVolume, Percent: dec("2"), Slab: "11-25"}
	orders := &fakeOrders{}
	svc, _ := newTestService(carts, orders, &recordingNotifier{})

	conf, err := svc.Checkout(context.Background(), testTenant, "cust-1")
	require.NoError(t, err)
	placed := conf.Order
	require.Equal(t, discount.SourceNone, placed.DiscountSource)
	require.True(t, placed.DiscountAmount.IsZero())
	require.True(t, placed.DiscountedSubtotal.Equal(dec("100")))
	require.True(t, placed.Items[0].PaidUnitPrice.Equal(dec("100")))
}

func TestCheckoutTwiceYieldsOneOrder(t *testing.T) {
	carts := newFakeCarts(catalogItem("100", 2))
	orders := &fakeOrders{}
	svc, clk := newTestService(carts, orders, &recordingNotifier{})
	ctx := context.Background()

	_, err := svc.Checkout(ctx, testTenant, "cust-1")
	require.NoError(t, err)

	carts.cart.Items = []cart.Item{catalogItem("50", 1)}
	_, err = svc.Checkout(ctx, testTenant, "cust-1")
	requireCode(t, err, "DUPLICATE_IN_PROGRESS")
	require.ErrorIs(t, err, ErrDuplicate)
	require.Equal(t, 1, orders.count())

	clk.now = clk.now.Add(11 * time.Minute)
	_, err = svc.Checkout(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.Equal(t, 2, orders.count())
}

func TestConcurrentCheckoutsProduceSingleOrder(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	carts := newFakeCarts(catalogItem("100", 3))
	orders := &fakeOrders{}
	svc, _ := newTestService(carts, orders, &recordingNotifier{})
	svc.Locker = lock.Locker{R: client}

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes, duplicates int
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Checkout(context.Background(), testTenant, "cust-1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, ErrDuplicate) {
				duplicates++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, duplicates)
	require.Equal(t, 1, orders.count())
}

func TestUniqueCartVersionMapsToDuplicate(t *testing.T) {
	carts := newFakeCarts(catalogItem("100", 1))
	orders := &fakeOrders{createErr: order.ErrDuplicate}
	svc, _ := newTestService(carts, orders, &recordingNotifier{})

	_, err := svc.Checkout(context.Background(), testTenant, "cust-1")
	requireCode(t, err, "DUPLICATE_IN_PROGRESS")
	require.Equal(t, 0, carts.committed)
}

func TestCheckoutEmptyCart(t *testing.T) {
	orders := &fakeOrders{}
	missing := &fakeCarts{}
	svc, _ := newTestService(missing, orders, &recordingNotifier{})
	_, err := svc.Checkout(context.Background(), testTenant, "cust-1")
	requireCode(t, err, "EMPTY_CART")

	invalidOnly := newFakeCarts(catalogItem("0", 2))
	svc, _ = newTestService(invalidOnly, orders, &recordingNotifier{})
	_, err = svc.Checkout(context.Background(), testTenant, "cust-1")
	requireCode(t, err, "EMPTY_CART")
	require.ErrorIs(t, err, ErrEmptyCart)
	require.Equal(t, 0, orders.count())
	require.Equal(t, 0, invalidOnly.committed)
}

func TestPersistenceFailureLeavesCartUntouched(t *testing.T) {
	item := catalogItem("100", 4)
	carts := newFakeCarts(item)
	orders := &fakeOrders{createErr: errors.New("connection reset")}
	notifier := &recordingNotifier{}
	svc, _ := newTestService(carts, orders, notifier)

	_, err := svc.Checkout(context.Background(), testTenant, "cust-1")
	requireCode(t, err, "INTERNAL")
	require.Equal(t, 0, carts.committed)
	require.Equal(t, []cart.Item{item}, carts.cart.Items)
	require.Empty(t, notifier.events)
}

func TestSideEffectFailuresStillConfirm(t *testing.T) {
	carts := newFakeCarts(catalogItem("100", 1))
	carts.commitErr = errors.New("cart table locked")
	orders := &fakeOrders{}
	notifier := &recordingNotifier{err: errors.New("queue unavailable")}
	svc, _ := newTestService(carts, orders, notifier)

	conf, err := svc.Checkout(context.Background(), testTenant, "cust-1")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, conf.OrderID)
	require.Equal(t, 1, orders.count())
	require.Len(t, notifier.events, 1)
}

func TestLockFailureFallsBackToDatabaseGuard(t *testing.T) {
	carts := newFakeCarts(catalogItem("100", 1))
	orders := &fakeOrders{}
	svc, _ := newTestService(carts, orders, &recordingNotifier{})
	svc.Locker = lock.Locker{}

	_, err := svc.Checkout(context.Background(), testTenant, "cust-1")
	require.NoError(t, err)
	require.Equal(t, 1, orders.count())
}

func TestAttemptTransitions(t *testing.T) {
	logger := zerolog.Nop()
	a := newAttempt(&logger)
	require.Error(t, a.advance(cart.StatusCommitted))
	require.NoError(t, a.advance(cart.StatusPriced))
	require.NoError(t, a.advance(cart.StatusCommitted))
	a.abort()
	require.Equal(t, cart.StatusCommitted, a.status)
}

func TestHandlerCheckout(t *testing.T) {
	carts := newFakeCarts(catalogItem("100", 2))
	svc, _ := newTestService(carts, &fakeOrders{}, &recordingNotifier{})
	h := &Handler{Svc: svc}
	r := chi.NewRouter()
	r.Use(tenant.NewResolver("", "", nil).Middleware)
	r.Post("/v1/checkout/{customer}", h.Checkout)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/checkout/cust-1", nil)
		req.Header.Set("X-Tenant-ID", testTenant.String())
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}
	rr := do()
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"number":"ORD-20260301-`)

	rr = do()
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "DUPLICATE_IN_PROGRESS")
}
