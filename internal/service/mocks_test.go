package service

import (
	"context"
	"sync"
	"testing"

	"github.com/fjod/storefront-cart/internal/catalog"
	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/pricing"
	"github.com/fjod/storefront-cart/internal/validator"
	"github.com/shopspring/decimal"
)

type mockPersister struct {
	m     sync.RWMutex
	saved map[string]domain.CartState
	saves int
	err   error
}

func newMockPersister() *mockPersister {
	return &mockPersister{saved: make(map[string]domain.CartState)}
}

func (p *mockPersister) Save(_ context.Context, cartID string, state domain.CartState) error {
	p.m.Lock()
	defer p.m.Unlock()
	p.saves++
	if p.err != nil {
		return p.err
	}
	p.saved[cartID] = state
	return nil
}

func (p *mockPersister) Load(_ context.Context, cartID string) (domain.CartState, error) {
	p.m.RLock()
	defer p.m.RUnlock()
	if p.err != nil {
		return domain.CartState{}, p.err
	}
	return p.saved[cartID], nil
}

func (p *mockPersister) saveCount() int {
	p.m.RLock()
	defer p.m.RUnlock()
	return p.saves
}

type recordingEmitter struct {
	m      sync.RWMutex
	events []domain.CartEvent
	// onEmit runs before the event is recorded
	onEmit func(domain.CartEvent)
}

func (e *recordingEmitter) Emit(_ context.Context, event domain.CartEvent) {
	if e.onEmit != nil {
		e.onEmit(event)
	}
	e.m.Lock()
	defer e.m.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) types() []domain.EventType {
	e.m.RLock()
	defer e.m.RUnlock()
	out := make([]domain.EventType, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

type mockRecorder struct {
	m   sync.RWMutex
	ops []string
}

func (r *mockRecorder) RecordFailure(_ context.Context, op string, _ error) {
	r.m.Lock()
	defer r.m.Unlock()
	r.ops = append(r.ops, op)
}

func (r *mockRecorder) failures() []string {
	r.m.RLock()
	defer r.m.RUnlock()
	return append([]string(nil), r.ops...)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestCatalog has P1 (10.00, max 5), P2 (20.00, max 10, sizes S/M) and
// SOLDOUT, plus SAVE10 (10%, min 50) and FLAT5.
func newTestCatalog() *catalog.MemoryCatalog {
	c := catalog.NewMemoryCatalog()
	c.AddProduct(catalog.Product{ID: "P1", Name: "Mug", Price: dec("10"), Stock: 5, LowStockThreshold: 1})
	c.AddProduct(catalog.Product{
		ID: "P2", Name: "Tee", Price: dec("20"), Stock: 100, MaxPerOrder: 10,
		Variants: map[string]catalog.Variant{
			"S": {ID: "S", Name: "Small", Stock: 50},
			"M": {ID: "M", Name: "Medium", Stock: 50},
		},
	})
	c.AddProduct(catalog.Product{ID: "SOLDOUT", Name: "Poster", Price: dec("8"), Stock: 0})
	c.AddProduct(catalog.Product{ID: "BULK", Name: "Sticker", Price: dec("1"), Stock: 1000})
	c.AddDiscount(domain.DiscountRule{Code: "SAVE10", Type: domain.DiscountPercentage, Value: dec("10"), MinimumAmount: dec("50")})
	c.AddDiscount(domain.DiscountRule{Code: "FLAT5", Type: domain.DiscountFixed, Value: dec("5")})
	return c
}

type testStore struct {
	store     *CartStore
	catalog   *catalog.MemoryCatalog
	persister *mockPersister
	emitter   *recordingEmitter
	recorder  *mockRecorder
}

func newTestStore(t *testing.T, opts ...Option) *testStore {
	t.Helper()
	ts := &testStore{
		catalog:   newTestCatalog(),
		persister: newMockPersister(),
		emitter:   &recordingEmitter{},
		recorder:  &mockRecorder{},
	}
	ts.store = NewCartStore("session-1", Deps{
		Lookup:    ts.catalog,
		Discounts: ts.catalog,
		Pricing: pricing.NewEngine(pricing.Config{
			TaxRate:             dec("0.1"),
			DefaultShippingCost: dec("5"),
			Currency:            "USD",
		}),
		Validator: validator.New(0),
		Persister: ts.persister,
		Emitter:   ts.emitter,
		Recorder:  ts.recorder,
	}, opts...)
	return ts
}
