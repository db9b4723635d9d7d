package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// DiscountRule is a discount code as known by the discount lookup.
type DiscountRule struct {
	Code          string
	Type          DiscountType
	Value         decimal.Decimal
	MinimumAmount decimal.Decimal
	ExpiresAt     *time.Time
}

func (r DiscountRule) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// AppliedDiscount is a discount code attached to a cart with the amount
// computed at the time it was applied.
type AppliedDiscount struct {
	Code      string          `json:"code"`
	Type      DiscountType    `json:"type"`
	Value     decimal.Decimal `json:"value"`
	Amount    decimal.Decimal `json:"amount"`
	AppliedAt time.Time       `json:"appliedAt"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
}

type ShippingOption struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Cost          decimal.Decimal `json:"cost"`
	EstimatedDays int             `json:"estimatedDays,omitempty"`
}

type CartOptions struct {
	ShippingOption   *ShippingOption   `json:"shippingOption,omitempty"`
	AppliedDiscounts []AppliedDiscount `json:"appliedDiscounts"`
}

func (o CartOptions) HasDiscount(code string) bool {
	for _, d := range o.AppliedDiscounts {
		if d.Code == code {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices or pointers with o.
func (o CartOptions) Clone() CartOptions {
	out := CartOptions{
		AppliedDiscounts: make([]AppliedDiscount, len(o.AppliedDiscounts)),
	}
	copy(out.AppliedDiscounts, o.AppliedDiscounts)
	if o.ShippingOption != nil {
		opt := *o.ShippingOption
		out.ShippingOption = &opt
	}
	return out
}

// CartState is the mutable part of a cart: its lines and options.
type CartState struct {
	Items       []LineItem
	Options     CartOptions
	LastUpdated time.Time
}

// Clone returns a deep enough copy for handing state across goroutines.
func (s CartState) Clone() CartState {
	items := make([]LineItem, len(s.Items))
	copy(items, s.Items)
	return CartState{
		Items:       items,
		Options:     s.Options.Clone(),
		LastUpdated: s.LastUpdated,
	}
}

func (s CartState) FindItem(itemID string) (int, bool) {
	for idx, item := range s.Items {
		if item.ID == itemID {
			return idx, true
		}
	}
	return -1, false
}

func (s CartState) FindProduct(productID, variantID string) (int, bool) {
	for idx, item := range s.Items {
		if item.Matches(productID, variantID) {
			return idx, true
		}
	}
	return -1, false
}

// HasProduct reports whether any line references productID.
func (s CartState) HasProduct(productID string) bool {
	for _, item := range s.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}
