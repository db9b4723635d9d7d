package pricing

import (
	"testing"
	"time"

	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func resolvedItem(productID, price string, qty int) domain.LineItem {
	item := domain.NewLineItem(productID, "", qty, time.Now())
	item.Resolve(domain.ProductFacts{
		ProductID:   productID,
		UnitPrice:   dec(price),
		InStock:     true,
		MaxQuantity: 10,
	})
	return item
}

func newTestEngine() *Engine {
	return NewEngine(Config{
		TaxRate:             dec("0.08"),
		DefaultShippingCost: dec("5"),
		Currency:            "USD",
	})
}

func TestCompute_EmptyCart(t *testing.T) {
	totals := newTestEngine().Compute(nil, domain.CartOptions{})

	assert.True(t, totals.Subtotal.IsZero())
	assert.True(t, totals.Shipping.IsZero(), "empty cart has no shipping")
	assert.True(t, totals.Total.IsZero())
	assert.Equal(t, "USD", totals.Currency)
}

func TestCompute_DefaultShipping(t *testing.T) {
	items := []domain.LineItem{resolvedItem("P1", "20", 2)}

	totals := newTestEngine().Compute(items, domain.CartOptions{})

	assert.Equal(t, "40.00", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "5.00", totals.Shipping.StringFixed(2))
	assert.Equal(t, "3.20", totals.Tax.StringFixed(2))
	assert.Equal(t, "48.20", totals.Total.StringFixed(2))
}

func TestCompute_SelectedShipping(t *testing.T) {
	items := []domain.LineItem{resolvedItem("P1", "10", 1)}
	opts := domain.CartOptions{
		ShippingOption: &domain.ShippingOption{ID: "express", Cost: dec("15")},
	}

	totals := newTestEngine().Compute(items, opts)

	assert.Equal(t, "15.00", totals.Shipping.StringFixed(2))
}

func TestCompute_SelectedShippingIgnoredWhenEmpty(t *testing.T) {
	opts := domain.CartOptions{
		ShippingOption: &domain.ShippingOption{ID: "express", Cost: dec("15")},
	}

	totals := newTestEngine().Compute(nil, opts)

	assert.True(t, totals.Shipping.IsZero())
}

func TestCompute_DiscountsAreAdditive(t *testing.T) {
	items := []domain.LineItem{resolvedItem("P1", "100", 1)}
	opts := domain.CartOptions{AppliedDiscounts: []domain.AppliedDiscount{
		{Code: "SAVE10", Amount: dec("10")},
		{Code: "FLAT5", Amount: dec("5")},
	}}

	totals := newTestEngine().Compute(items, opts)

	assert.Equal(t, "15.00", totals.Discount.StringFixed(2))
	// 100 + 5 + 8 - 15
	assert.Equal(t, "98.00", totals.Total.StringFixed(2))
}

func TestCompute_TotalNeverNegative(t *testing.T) {
	items := []domain.LineItem{resolvedItem("P1", "10", 1)}
	opts := domain.CartOptions{AppliedDiscounts: []domain.AppliedDiscount{
		{Code: "HUGE", Amount: dec("500")},
	}}

	totals := newTestEngine().Compute(items, opts)

	assert.True(t, totals.Total.IsZero())
}

func TestCompute_PendingItemsCarryNoPrice(t *testing.T) {
	pending := domain.NewLineItem("P2", "", 3, time.Now())
	items := []domain.LineItem{resolvedItem("P1", "10", 1), pending}

	totals := newTestEngine().Compute(items, domain.CartOptions{})

	assert.Equal(t, "10.00", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "5.00", totals.Shipping.StringFixed(2), "pending items still count as a non-empty cart")
}

func TestDiscountAmount(t *testing.T) {
	e := newTestEngine()

	percentage := domain.DiscountRule{Code: "SAVE10", Type: domain.DiscountPercentage, Value: dec("10")}
	assert.Equal(t, "10.00", e.DiscountAmount(percentage, dec("100")).StringFixed(2))
	assert.Equal(t, "3.33", e.DiscountAmount(percentage, dec("33.33")).StringFixed(2))

	fixed := domain.DiscountRule{Code: "FLAT5", Type: domain.DiscountFixed, Value: dec("5")}
	assert.Equal(t, "5.00", e.DiscountAmount(fixed, dec("100")).StringFixed(2))
	assert.Equal(t, "3.00", e.DiscountAmount(fixed, dec("3")).StringFixed(2))

	unknown := domain.DiscountRule{Code: "X", Type: "bogus", Value: dec("5")}
	assert.True(t, e.DiscountAmount(unknown, dec("100")).IsZero())
}
