package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront-cart/internal/catalog"
	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAddItem_NewLine(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	item, err := ts.store.AddItem(ctx, "P1", 2, "")
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, 2, item.Quantity)

	total, ok := item.TotalPrice()
	require.True(t, ok)
	assert.Equal(t, "20.00", total.StringFixed(2))

	summary := ts.store.Summary()
	assert.Equal(t, 2, summary.TotalItems)
	assert.False(t, summary.IsEmpty)

	assert.Equal(t, []domain.EventType{domain.EventItemAdded}, ts.emitter.types())
	assert.Equal(t, 1, ts.persister.saveCount())
}

func TestAddItem_MergesSameProduct(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	first, err := ts.store.AddItem(ctx, "P1", 1, "")
	require.NoError(t, err)
	second, err := ts.store.AddItem(ctx, "P1", 2, "")
	require.NoError(t, err)

	items := ts.store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, items[0].Quantity)
	assert.True(t, first.AddedAt.Equal(items[0].AddedAt), "addedAt never changes")
}

func TestAddItem_VariantsAreSeparateLines(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	_, err := ts.store.AddItem(ctx, "P2", 1, "S")
	require.NoError(t, err)
	_, err = ts.store.AddItem(ctx, "P2", 1, "M")
	require.NoError(t, err)
	_, err = ts.store.AddItem(ctx, "P2", 1, "S")
	require.NoError(t, err)

	items := ts.store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 1, items[1].Quantity)
}

func TestAddItem_ExceedsStockLeavesCartUnchanged(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	_, err := ts.store.AddItem(ctx, "P1", 3, "")
	require.NoError(t, err)

	_, err = ts.store.AddItem(ctx, "P1", 3, "")
	require.ErrorIs(t, err, domain.ErrQuantityExceedsStock)
	var stockErr *domain.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)

	items := ts.store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Len(t, ts.emitter.types(), 1, "failed add emits nothing")
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	ts := newTestStore(t)

	_, err := ts.store.AddItem(context.Background(), "P1", 0, "")
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	assert.Empty(t, ts.store.Items())
}

func TestAddItem_CatalogErrors(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	_, err := ts.store.AddItem(ctx, "NOPE", 1, "")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = ts.store.AddItem(ctx, "P2", 1, "XXL")
	assert.ErrorIs(t, err, domain.ErrVariantNotFound)

	_, err = ts.store.AddItem(ctx, "SOLDOUT", 1, "")
	assert.ErrorIs(t, err, domain.ErrOutOfStock)

	assert.Empty(t, ts.store.Items())
	assert.Equal(t, 0, ts.persister.saveCount())
}

func TestUpdateQuantity(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	item, err := ts.store.AddItem(ctx, "P1", 3, "")
	require.NoError(t, err)

	require.NoError(t, ts.store.UpdateQuantity(ctx, item.ID, 4))
	assert.Equal(t, 4, ts.store.Items()[0].Quantity)

	err = ts.store.UpdateQuantity(ctx, item.ID, 6)
	require.ErrorIs(t, err, domain.ErrQuantityExceedsStock)
	assert.Equal(t, 4, ts.store.Items()[0].Quantity)

	assert.Equal(t, []domain.EventType{domain.EventItemAdded, domain.EventQuantityUpdated}, ts.emitter.types())
}

func TestUpdateQuantity_AtCeiling(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()
	ts.catalog.AddProduct(catalog.Product{ID: "LAMP", Name: "Lamp", Price: dec("45"), Stock: 3})

	item, err := ts.store.AddItem(ctx, "LAMP", 3, "")
	require.NoError(t, err)

	err = ts.store.UpdateQuantity(ctx, item.ID, 4)
	require.ErrorIs(t, err, domain.ErrQuantityExceedsStock)
	assert.Equal(t, 3, ts.store.Items()[0].Quantity)
	assert.Equal(t, 3, ts.store.Summary().TotalItems)
}

func TestUpdateQuantity_ZeroRemoves(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	item, err := ts.store.AddItem(ctx, "P1", 2, "")
	require.NoError(t, err)

	require.NoError(t, ts.store.UpdateQuantity(ctx, item.ID, 0))
	assert.Empty(t, ts.store.Items())
	assert.Equal(t, []domain.EventType{domain.EventItemAdded, domain.EventItemRemoved}, ts.emitter.types())
}

func TestUpdateQuantity_UnknownItem(t *testing.T) {
	ts := newTestStore(t)

	err := ts.store.UpdateQuantity(context.Background(), "missing", 2)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestRemoveItem_UnknownIsNoop(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	_, err := ts.store.AddItem(ctx, "P1", 1, "")
	require.NoError(t, err)
	saves := ts.persister.saveCount()

	require.NoError(t, ts.store.RemoveItem(ctx, "missing"))
	require.NoError(t, ts.store.RemoveItem(ctx, "missing"))

	assert.Len(t, ts.store.Items(), 1)
	assert.Equal(t, saves, ts.persister.saveCount())
	assert.Equal(t, []domain.EventType{domain.EventItemAdded}, ts.emitter.types())
}

func TestRemoveItem_Twice(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	item, err := ts.store.AddItem(ctx, "P1", 1, "")
	require.NoError(t, err)

	require.NoError(t, ts.store.RemoveItem(ctx, item.ID))
	require.NoError(t, ts.store.RemoveItem(ctx, item.ID))
	assert.Empty(t, ts.store.Items())
}

func TestClearCart_ResetsOptions(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	_, err := ts.store.AddItem(ctx, "P2", 5, "S")
	require.NoError(t, err)
	require.True(t, ts.store.ApplyDiscountCode(ctx, "FLAT5"))
	require.NoError(t, ts.store.SetShippingOption(ctx, &domain.ShippingOption{ID: "express", Cost: dec("15")}))

	require.NoError(t, ts.store.ClearCart(ctx))

	assert.Empty(t, ts.store.Items())
	opts := ts.store.Options()
	assert.Nil(t, opts.ShippingOption)
	assert.Empty(t, opts.AppliedDiscounts)
	assert.True(t, ts.store.Totals().Total.IsZero())
}

func TestSetShippingOption(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	_, err := ts.store.AddItem(ctx, "P1", 1, "")
	require.NoError(t, err)
	require.NoError(t, ts.store.SetShippingOption(ctx, &domain.ShippingOption{ID: "express", Cost: dec("15")}))
	assert.Equal(t, "15.00", ts.store.Totals().Shipping.StringFixed(2))

	require.NoError(t, ts.store.SetShippingOption(ctx, nil))
	assert.Equal(t, "5.00", ts.store.Totals().Shipping.StringFixed(2))
}

func TestTotals(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	_, err := ts.store.AddItem(ctx, "P1", 2, "")
	require.NoError(t, err)

	totals := ts.store.Totals()
	assert.Equal(t, "20.00", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "2.00", totals.Tax.StringFixed(2))
	assert.Equal(t, "27.00", totals.Total.StringFixed(2))
}

func TestValidation_OutOfStockBlocksCheckout(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	_, err := ts.store.AddItem(ctx, "P1", 2, "")
	require.NoError(t, err)
	require.True(t, ts.store.Summary().CanCheckout)

	require.NoError(t, ts.catalog.SetStock(ctx, "P1", "", 0))
	require.NoError(t, ts.store.RefreshItems(ctx))

	summary := ts.store.Summary()
	assert.False(t, summary.IsValid)
	assert.True(t, summary.HasOutOfStockItems)
	assert.True(t, ts.store.Validation().HasError(domain.IssueOutOfStock))
	assert.False(t, summary.CanCheckout)
}

func TestRefreshItems_PriceChangedWarning(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	_, err := ts.store.AddItem(ctx, "P1", 1, "")
	require.NoError(t, err)
	ts.catalog.SetPrice("P1", dec("12"))

	require.NoError(t, ts.store.RefreshItems(ctx))

	v := ts.store.Validation()
	assert.True(t, v.IsValid())
	assert.True(t, v.HasWarning(domain.IssuePriceChanged))
	assert.Equal(t, "12.00", ts.store.Totals().Subtotal.StringFixed(2))
}

func TestRefreshItems_RemovedProductBecomesUnavailable(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	_, err := ts.store.AddItem(ctx, "P1", 1, "")
	require.NoError(t, err)
	ts.catalog.RemoveProduct("P1")

	require.NoError(t, ts.store.RefreshItems(ctx))

	assert.True(t, ts.store.Validation().HasError(domain.IssueProductUnavailable))
	assert.True(t, ts.store.Totals().Subtotal.IsZero())
}

func TestBeginCheckout(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	_, err := ts.store.BeginCheckout(ctx)
	require.ErrorIs(t, err, domain.ErrCheckoutBlocked, "empty cart cannot check out")

	_, err = ts.store.AddItem(ctx, "P1", 2, "")
	require.NoError(t, err)
	ts.store.OpenCart()

	summary, err := ts.store.BeginCheckout(ctx)
	require.NoError(t, err)
	assert.True(t, summary.CanCheckout)
	assert.False(t, ts.store.IsOpen())
	assert.Len(t, ts.store.Items(), 1, "checkout does not clear the cart")
}

func TestBeginCheckout_BlockedBySoldOutItem(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	_, err := ts.store.AddItem(ctx, "P1", 2, "")
	require.NoError(t, err)
	require.NoError(t, ts.catalog.SetStock(ctx, "P1", "", 0))
	ts.store.OpenCart()

	summary, err := ts.store.BeginCheckout(ctx)
	require.ErrorIs(t, err, domain.ErrCheckoutBlocked)
	assert.True(t, summary.HasOutOfStockItems)
	assert.True(t, ts.store.IsOpen())
}

func TestVisibility(t *testing.T) {
	ts := newTestStore(t)

	assert.False(t, ts.store.IsOpen())
	ts.store.OpenCart()
	assert.True(t, ts.store.IsOpen())
	assert.False(t, ts.store.ToggleCart())
	assert.True(t, ts.store.ToggleCart())
	ts.store.CloseCart()
	assert.False(t, ts.store.IsOpen())
	assert.Equal(t, 0, ts.persister.saveCount(), "visibility is not persisted")
}

func TestPipeline_PersistsBeforeEmitting(t *testing.T) {
	ts := newTestStore(t)
	var savesAtEmit int
	ts.emitter.onEmit = func(domain.CartEvent) {
		savesAtEmit = ts.persister.saveCount()
	}

	_, err := ts.store.AddItem(context.Background(), "P1", 1, "")
	require.NoError(t, err)

	assert.Equal(t, 1, savesAtEmit)
}

type orderStage struct {
	name  string
	order *[]string
	err   error
}

func (s orderStage) Name() string { return s.name }

func (s orderStage) Run(_ context.Context, _ *Commit) error {
	*s.order = append(*s.order, s.name)
	return s.err
}

func TestPipeline_CustomStagesRunInOrder(t *testing.T) {
	var order []string
	ts := newTestStore(t, WithStages(
		orderStage{name: "a", order: &order},
		orderStage{name: "b", order: &order, err: errors.New("stop")},
		orderStage{name: "c", order: &order},
	))

	_, err := ts.store.AddItem(context.Background(), "P1", 1, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, order, "a failing stage stops the pipeline")
	assert.Len(t, ts.store.Items(), 1)
}

func TestPersistFailure_IsSwallowedAndRecorded(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	persister := newMockPersister()
	persister.err = errors.New("disk full")
	recorder := &mockRecorder{}
	emitter := &recordingEmitter{}
	store := NewCartStore("s1", Deps{
		Lookup:    newTestCatalog(),
		Discounts: newTestCatalog(),
		Persister: persister,
		Emitter:   emitter,
		Recorder:  recorder,
		Log:       zap.New(core),
	})

	_, err := store.AddItem(context.Background(), "P1", 1, "")
	require.NoError(t, err)

	assert.Len(t, store.Items(), 1)
	assert.Equal(t, []string{"save"}, recorder.failures())
	assert.Equal(t, 1, logs.FilterMessage("cart persistence failed").Len())
	assert.Equal(t, []domain.EventType{domain.EventItemAdded}, emitter.types(), "listeners still hear about it")
}

func TestConcurrentAddsAreSerialized(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ts.store.AddItem(ctx, "BULK", 2, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	items := ts.store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 50, items[0].Quantity)
	assert.Len(t, ts.emitter.types(), 25)
}

func TestHydrate_RestoresWithFreshPrices(t *testing.T) {
	cat := newTestCatalog()
	storage := persistence.NewMemoryStorage()
	adapter := persistence.NewAdapter(storage, cat, nil)
	deps := Deps{Lookup: cat, Discounts: cat, Persister: adapter}
	ctx := context.Background()

	first := NewCartStore("s1", deps)
	first.Hydrate(ctx)
	_, err := first.AddItem(ctx, "P1", 2, "")
	require.NoError(t, err)
	first.Close()

	cat.SetPrice("P1", dec("11"))

	second := NewCartStore("s1", deps)
	second.Hydrate(ctx)

	items := second.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	total, ok := items[0].TotalPrice()
	require.True(t, ok)
	assert.Equal(t, "22.00", total.StringFixed(2))
	assert.True(t, second.Validation().IsValid())
}

func TestHydrate_LoadFailureStartsEmpty(t *testing.T) {
	ts := newTestStore(t)
	ts.persister.err = errors.New("connection refused")

	ts.store.Hydrate(context.Background())

	assert.Empty(t, ts.store.Items())
	assert.Equal(t, []string{"load"}, ts.recorder.failures())
}

func TestClose_RejectsMutations(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	ts.store.Close()
	ts.store.Close()

	_, err := ts.store.AddItem(ctx, "P1", 1, "")
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
	assert.ErrorIs(t, ts.store.ClearCart(ctx), domain.ErrStoreClosed)
	assert.False(t, ts.store.ApplyDiscountCode(ctx, "FLAT5"))
	assert.Equal(t, ErrMsgCartClosed, ts.store.LastError())
	assert.Zero(t, ts.persister.saveCount())
}

func TestView(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := newTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	item, err := ts.store.AddItem(ctx, "P1", 1, "")
	require.NoError(t, err)
	assert.True(t, now.Equal(item.AddedAt))

	view := ts.store.View()
	assert.Equal(t, "session-1", view.ID)
	assert.Len(t, view.Items, 1)
	assert.Equal(t, 1, view.Summary.TotalItems)
	assert.False(t, view.IsOpen)
}
