package pricing

import (
	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Config struct {
	TaxRate             decimal.Decimal
	DefaultShippingCost decimal.Decimal
	Currency            string
}

// Engine derives cart totals. It holds no state besides its config
// and is safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Engine{cfg: cfg}
}

// Subtotal sums the totals of resolved items. Pending and unavailable
// items carry no price and contribute nothing.
func (e *Engine) Subtotal(items []domain.LineItem) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		if total, ok := item.TotalPrice(); ok {
			subtotal = subtotal.Add(total)
		}
	}
	return subtotal
}

func (e *Engine) Compute(items []domain.LineItem, opts domain.CartOptions) domain.CartTotals {
	subtotal := e.Subtotal(items)

	shipping := decimal.Zero
	if len(items) > 0 {
		shipping = e.cfg.DefaultShippingCost
		if opts.ShippingOption != nil {
			shipping = opts.ShippingOption.Cost
		}
	}

	tax := subtotal.Mul(e.cfg.TaxRate).Round(2)

	discount := decimal.Zero
	for _, d := range opts.AppliedDiscounts {
		discount = discount.Add(d.Amount)
	}

	total := subtotal.Add(shipping).Add(tax).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return domain.CartTotals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Discount: discount,
		Total:    total,
		Currency: e.cfg.Currency,
	}
}

// DiscountAmount computes what rule takes off the given subtotal.
// Fixed discounts never exceed the subtotal.
func (e *Engine) DiscountAmount(rule domain.DiscountRule, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch rule.Type {
	case domain.DiscountPercentage:
		amount = subtotal.Mul(rule.Value).Div(hundred).Round(2)
	case domain.DiscountFixed:
		amount = decimal.Min(rule.Value, subtotal)
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
