package domain

import "github.com/shopspring/decimal"

type CartTotals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// CartSummary is the read model handed to UI and checkout.
type CartSummary struct {
	TotalItems         int            `json:"totalItems"`
	ItemCount          int            `json:"itemCount"`
	IsEmpty            bool           `json:"isEmpty"`
	IsValid            bool           `json:"isValid"`
	HasOutOfStockItems bool           `json:"hasOutOfStockItems"`
	CanCheckout        bool           `json:"canCheckout"`
	Totals             CartTotals     `json:"totals"`
	Validation         CartValidation `json:"validation"`
}

// NewSummary derives the summary flags from items, totals and validation.
func NewSummary(items []LineItem, totals CartTotals, validation CartValidation) CartSummary {
	s := CartSummary{
		ItemCount:  len(items),
		IsEmpty:    len(items) == 0,
		IsValid:    validation.IsValid(),
		Totals:     totals,
		Validation: validation,
	}
	for _, item := range items {
		s.TotalItems += item.Quantity
		if facts, ok := item.Facts(); ok && !facts.InStock {
			s.HasOutOfStockItems = true
		}
	}
	s.CanCheckout = s.IsValid && !s.HasOutOfStockItems && !s.IsEmpty
	return s
}
