package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/money"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

func TestAddItemCreatesCartLazilyAndIncrements(t *testing.T) {
	p := newProduct("100")
	store := newMemStore(p)
	svc := newService(store)
	ctx := context.Background()

	c, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 4)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	require.Equal(t, StatusOpen, c.Status)

	c, err = svc.AddItem(ctx, testTenant, "cust-1", p.ID, 3)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	require.Equal(t, 7, c.Items[0].Quantity)
}

func TestAddItemRejectsQuantityAboveCap(t *testing.T) {
	p := newProduct("10")
	store := newMemStore(p)
	svc := newService(store)
	svc.MaxItemQty = 5
	ctx := context.Background()

	_, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 6)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddItem(ctx, testTenant, "cust-1", p.ID, 5)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, testTenant, "cust-1", p.ID, 1)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddItem(ctx, testTenant, "cust-1", p.ID, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddItemUnknownProduct(t *testing.T) {
	svc := newService(newMemStore())
	_, err := svc.AddItem(context.Background(), testTenant, "cust-1", uuid.New(), 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPreviewMissingCartIsEmpty(t *testing.T) {
	svc := newService(newMemStore())
	res, err := svc.Preview(context.Background(), testTenant, "nobody")
	require.NoError(t, err)
	require.True(t, res.Empty)
	require.True(t, res.GrandTotal.IsZero())
}

func TestPreviewNeverAppliesVolumeDiscountUnlessAccepted(t *testing.T) {
	p := newProduct("100")
	store := newMemStore(p)
	svc := newService(store)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 12)
	require.NoError(t, err)

	res, err := svc.Preview(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.True(t, res.Discount.Total.IsZero())
	require.True(t, res.DiscountedSubtotal.Equal(dec("1200")))
}

func TestAcceptVolumeOfferReproducesWorkedExample(t *testing.T) {
	p := newProduct("100")
	store := newMemStore(p)
	svc := newService(store)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 12)
	require.NoError(t, err)
	require.NoError(t, svc.SetShippingState(ctx, testTenant, "cust-1", " ka "))

	offer, err := svc.OfferVolumeDiscount(ctx, testTenant, "cust-1", discount.ModeMin, nil)
	require.NoError(t, err)
	require.Equal(t, "11-25", offer.Slab.Label())
	require.True(t, offer.Amount.Equal(dec("24")))

	approved, err := svc.AcceptVolumeOffer(ctx, testTenant, "cust-1", discount.ModeMin, nil)
	require.NoError(t, err)
	require.Equal(t, discount.SourceVolume, approved.Source)

	res, err := svc.Preview(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.True(t, res.Discount.Total.Equal(dec("24")))
	require.True(t, res.Shipping.Charge.Equal(dec("240")))
	require.True(t, res.Tax.Amount.Equal(dec("254.88")))
	require.True(t, res.GrandTotal.Equal(dec("1671")))
	require.True(t, res.Rounding.Adjustment.Equal(dec("0.12")))
	require.False(t, res.Tax.Interstate)
}

func TestShrinkingCartWithdrawsAcceptedVolumeOffer(t *testing.T) {
	p := newProduct("100")
	store := newMemStore(p)
	svc := newService(store)
	ctx := context.Background()
	c, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 12)
	require.NoError(t, err)
	_, err = svc.AcceptVolumeOffer(ctx, testTenant, "cust-1", discount.ModeMin, nil)
	require.NoError(t, err)

	// still inside 11-25, the offer stays
	require.NoError(t, svc.UpdateQty(ctx, testTenant, "cust-1", c.Items[0].ID, 20))
	c, err = svc.Load(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.NotNil(t, c.Discount)

	require.NoError(t, svc.UpdateQty(ctx, testTenant, "cust-1", c.Items[0].ID, 1))
	c, err = svc.Load(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.Nil(t, c.Discount)

	res, err := svc.Preview(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.Equal(t, discount.SourceNone, res.Discount.Source)
	require.True(t, res.Discount.Percent.IsZero())
	require.True(t, res.DiscountedSubtotal.Equal(dec("100")))
}

func TestGrowingCartPastSlabWithdrawsVolumeOffer(t *testing.T) {
	p := newProduct("100")
	other := newProduct("50")
	store := newMemStore(p, other)
	svc := newService(store)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 12)
	require.NoError(t, err)
	_, err = svc.AcceptVolumeOffer(ctx, testTenant, "cust-1", discount.ModeMin, nil)
	require.NoError(t, err)

	c, err := svc.AddItem(ctx, testTenant, "cust-1", other.ID, 20)
	require.NoError(t, err)
	require.Nil(t, c.Discount)

	require.NoError(t, svc.RemoveItem(ctx, testTenant, "cust-1", c.Items[1].ID))
	res, err := svc.Preview(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.Equal(t, discount.SourceNone, res.Discount.Source)
}

func TestNegotiatedDiscountSuppressesItemOverrides(t *testing.T) {
	p := newProduct("100")
	store := newMemStore(p)
	svc := newService(store)
	ctx := context.Background()
	c, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 12)
	require.NoError(t, err)
	require.NoError(t, svc.ApproveItemPrice(ctx, testTenant, "cust-1", c.Items[0].ID, dec("80")))

	res, err := svc.Preview(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.Equal(t, pricing.SourceNegotiated, res.Items[0].Source)
	require.True(t, res.Subtotal.Equal(dec("960")))

	_, err = svc.OfferVolumeDiscount(ctx, testTenant, "cust-1", discount.ModeMin, nil)
	require.ErrorIs(t, err, ErrDiscountConflict)

	_, err = svc.ApproveDiscount(ctx, testTenant, "cust-1", dec("5"))
	require.NoError(t, err)
	res, err = svc.Preview(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.Equal(t, pricing.SourceCatalog, res.Items[0].Source)
	require.True(t, res.Subtotal.Equal(dec("1200")))
	require.True(t, res.Discount.Total.Equal(dec("60")))
	require.Equal(t, discount.SourceNegotiated, res.Discount.Source)
}

func TestApproveItemPriceValidation(t *testing.T) {
	p := newProduct("100")
	store := newMemStore(p)
	svc := newService(store)
	ctx := context.Background()
	c, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 1)
	require.NoError(t, err)

	require.ErrorIs(t, svc.ApproveItemPrice(ctx, testTenant, "cust-1", c.Items[0].ID, dec("0")), ErrInvalidInput)
	require.ErrorIs(t, svc.ApproveItemPrice(ctx, testTenant, "cust-1", c.Items[0].ID, dec("120")), ErrInvalidInput)
	require.ErrorIs(t, svc.ApproveItemPrice(ctx, testTenant, "cust-1", uuid.New(), dec("90")), ErrNotFound)
}

func TestViewClearsStaleOverrides(t *testing.T) {
	p := newProduct("100")
	store := newMemStore(p)
	svc := newService(store)
	ctx := context.Background()
	c, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 2)
	require.NoError(t, err)
	itemID := c.Items[0].ID
	require.NoError(t, store.SetItemOverride(ctx, c.ID, itemID, money.Ptr(dec("70")), false))

	preview, err := svc.Preview(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{itemID}, preview.StaleOverrides)
	require.Empty(t, store.cleared, "preview must not write")

	view, err := svc.View(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.Equal(t, pricing.SourceCatalog, view.Items[0].Source)
	require.Equal(t, []uuid.UUID{itemID}, store.cleared)

	after, err := store.GetCart(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.Nil(t, after.Items[0].PriceOverride)
}

func TestReturningCustomerGetsHistoryPrice(t *testing.T) {
	p := newProduct("100")
	store := newMemStore(p)
	svc := newService(store)
	svc.History = stubHistory{history: History{Returning: true, BestPrices: map[uuid.UUID]decimal.Decimal{p.ID: dec("90")}}}
	ctx := context.Background()
	_, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 2)
	require.NoError(t, err)

	res, err := svc.Preview(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.Equal(t, pricing.SourceHistory, res.Items[0].Source)
	require.True(t, res.Subtotal.Equal(dec("180")))
}

func TestCatalogOnlyPolicyForNewCustomers(t *testing.T) {
	p := newProduct("100")
	store := newMemStore(p)
	svc := newService(store)
	settings := exampleSettings()
	settings.settings.CatalogOnlyForNewCustomers = true
	svc.Settings = settings
	ctx := context.Background()
	c, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 2)
	require.NoError(t, err)
	require.NoError(t, svc.ApproveItemPrice(ctx, testTenant, "cust-1", c.Items[0].ID, dec("50")))

	res, err := svc.Preview(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.Equal(t, pricing.SourceCatalog, res.Items[0].Source)
}

func TestSettingsFailureSurfaces(t *testing.T) {
	p := newProduct("100")
	store := newMemStore(p)
	svc := newService(store)
	svc.Settings = stubSettings{err: errors.New("db down")}
	ctx := context.Background()
	_, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 1)
	require.NoError(t, err)

	_, err = svc.Preview(ctx, testTenant, "cust-1")
	require.Error(t, err)
}

func TestClearBumpsVersionAndResetsDiscount(t *testing.T) {
	p := newProduct("100")
	store := newMemStore(p)
	svc := newService(store)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 2)
	require.NoError(t, err)
	_, err = svc.ApproveDiscount(ctx, testTenant, "cust-1", dec("3"))
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, testTenant, "cust-1"))
	c, err := store.GetCart(ctx, testTenant, "cust-1")
	require.NoError(t, err)
	require.Empty(t, c.Items)
	require.Nil(t, c.Discount)
	require.EqualValues(t, 1, c.Version)

	require.NoError(t, svc.Clear(ctx, testTenant, "never-seen"))
}

func TestAddAfterCommitReopensCart(t *testing.T) {
	p := newProduct("100")
	store := newMemStore(p)
	svc := newService(store)
	ctx := context.Background()
	c, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 2)
	require.NoError(t, err)
	require.NoError(t, svc.MarkCommitted(ctx, c))

	c, err = svc.AddItem(ctx, testTenant, "cust-1", p.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, c.Status)
	require.EqualValues(t, 1, c.Version)
	require.Len(t, c.Items, 1)
}

func TestStatusTransitions(t *testing.T) {
	next, err := StatusOpen.Transition(StatusPriced)
	require.NoError(t, err)
	next, err = next.Transition(StatusCommitted)
	require.NoError(t, err)
	require.True(t, next.Terminal())

	_, err = StatusCommitted.Transition(StatusOpen)
	require.ErrorIs(t, err, ErrIllegalTransition)
	_, err = StatusOpen.Transition(StatusCommitted)
	require.ErrorIs(t, err, ErrIllegalTransition)
	aborted, err := StatusPriced.Transition(StatusAborted)
	require.NoError(t, err)
	require.True(t, aborted.Terminal())
}

type clearedRecorder struct{ payloads []ClearedPayload }

func (r *clearedRecorder) Name() string { return "recorder" }

func (r *clearedRecorder) Notify(_ context.Context, ev events.Event) error {
	var p ClearedPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	r.payloads = append(r.payloads, p)
	return nil
}

func TestClearEmitsCartClearedWithDiscardedVersion(t *testing.T) {
	p := newProduct("100")
	store := newMemStore(p)
	svc := newService(store)
	rec := &clearedRecorder{}
	svc.Events = &events.Bus{Notifiers: []events.Notifier{rec}}
	ctx := context.Background()

	c, err := svc.AddItem(ctx, testTenant, "cust-1", p.ID, 2)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, testTenant, "cust-1"))

	require.Len(t, rec.payloads, 1)
	require.Equal(t, c.ID, rec.payloads[0].CartID)
	require.Equal(t, "cust-1", rec.payloads[0].CustomerRef)
	require.Equal(t, c.Version, rec.payloads[0].Version)

	require.NoError(t, svc.Clear(ctx, testTenant, "never-seen"))
	require.Len(t, rec.payloads, 1)
}
