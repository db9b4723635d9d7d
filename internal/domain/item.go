package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ResolutionStatus tells whether catalog facts for a line item are known.
type ResolutionStatus string

const (
	ResolutionPending     ResolutionStatus = "pending"
	ResolutionResolved    ResolutionStatus = "resolved"
	ResolutionUnavailable ResolutionStatus = "unavailable"
)

// UnavailableReason explains why the catalog could not resolve an item.
type UnavailableReason string

const (
	ReasonProductMissing UnavailableReason = "product_missing"
	ReasonVariantMissing UnavailableReason = "variant_missing"
)

// ProductFacts is what the catalog knows about a product/variant pair.
type ProductFacts struct {
	ProductID   string          `json:"productId"`
	VariantID   string          `json:"variantId,omitempty"`
	Name        string          `json:"name"`
	VariantName string          `json:"variantName,omitempty"`
	SKU         string          `json:"sku,omitempty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	InStock     bool            `json:"inStock"`
	LowStock    bool            `json:"lowStock"`
	MaxQuantity int             `json:"maxQuantity"`
}

// LineItem is one (product, variant) entry of a cart.
// Catalog facts are only readable once the item is resolved.
type LineItem struct {
	ID        string
	ProductID string
	VariantID string
	Quantity  int
	AddedAt   time.Time
	UpdatedAt time.Time

	status        ResolutionStatus
	facts         ProductFacts
	reason        UnavailableReason
	previousPrice *decimal.Decimal
}

// NewLineItem creates a pending line item with a fresh id.
func NewLineItem(productID, variantID string, quantity int, now time.Time) LineItem {
	return LineItem{
		ID:        uuid.New().String(),
		ProductID: productID,
		VariantID: variantID,
		Quantity:  quantity,
		AddedAt:   now,
		UpdatedAt: now,
		status:    ResolutionPending,
	}
}

// Matches reports whether the item has the given product/variant identity.
func (i LineItem) Matches(productID, variantID string) bool {
	return i.ProductID == productID && i.VariantID == variantID
}

func (i LineItem) Status() ResolutionStatus {
	if i.status == "" {
		return ResolutionPending
	}
	return i.status
}

func (i LineItem) IsResolved() bool {
	return i.status == ResolutionResolved
}

// Facts returns catalog facts; ok is false unless the item is resolved.
func (i LineItem) Facts() (ProductFacts, bool) {
	if i.status != ResolutionResolved {
		return ProductFacts{}, false
	}
	return i.facts, true
}

func (i LineItem) UnitPrice() (decimal.Decimal, bool) {
	if i.status != ResolutionResolved {
		return decimal.Zero, false
	}
	return i.facts.UnitPrice, true
}

// TotalPrice is always UnitPrice * Quantity; it is never stored.
func (i LineItem) TotalPrice() (decimal.Decimal, bool) {
	price, ok := i.UnitPrice()
	if !ok {
		return decimal.Zero, false
	}
	return price.Mul(decimal.NewFromInt(int64(i.Quantity))), true
}

// MaxQuantity returns the purchasable limit; ok is false unless resolved.
func (i LineItem) MaxQuantity() (int, bool) {
	if i.status != ResolutionResolved {
		return 0, false
	}
	return i.facts.MaxQuantity, true
}

func (i LineItem) UnavailableReason() UnavailableReason {
	return i.reason
}

// PriceChange returns the unit price seen before the last resolution
// when the catalog reported a different price.
func (i LineItem) PriceChange() (decimal.Decimal, bool) {
	if i.previousPrice == nil || i.status != ResolutionResolved {
		return decimal.Zero, false
	}
	return *i.previousPrice, true
}

// Resolve attaches fresh catalog facts.
func (i *LineItem) Resolve(facts ProductFacts) {
	i.previousPrice = nil
	if i.status == ResolutionResolved && !i.facts.UnitPrice.Equal(facts.UnitPrice) {
		prev := i.facts.UnitPrice
		i.previousPrice = &prev
	}
	i.status = ResolutionResolved
	i.facts = facts
	i.reason = ""
}

// MarkUnavailable records that the catalog no longer has the product or variant.
func (i *LineItem) MarkUnavailable(reason UnavailableReason) {
	i.status = ResolutionUnavailable
	i.facts = ProductFacts{}
	i.reason = reason
	i.previousPrice = nil
}

type lineItemView struct {
	ID                string            `json:"id"`
	ProductID         string            `json:"productId"`
	VariantID         string            `json:"variantId,omitempty"`
	Quantity          int               `json:"quantity"`
	AddedAt           time.Time         `json:"addedAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	Status            ResolutionStatus  `json:"status"`
	UnavailableReason UnavailableReason `json:"unavailableReason,omitempty"`
	Product           *ProductFacts     `json:"product,omitempty"`
	UnitPrice         *decimal.Decimal  `json:"unitPrice,omitempty"`
	TotalPrice        *decimal.Decimal  `json:"totalPrice,omitempty"`
}

func (i LineItem) MarshalJSON() ([]byte, error) {
	view := lineItemView{
		ID:                i.ID,
		ProductID:         i.ProductID,
		VariantID:         i.VariantID,
		Quantity:          i.Quantity,
		AddedAt:           i.AddedAt,
		UpdatedAt:         i.UpdatedAt,
		Status:            i.Status(),
		UnavailableReason: i.reason,
	}
	if facts, ok := i.Facts(); ok {
		unit, _ := i.UnitPrice()
		total, _ := i.TotalPrice()
		view.Product = &facts
		view.UnitPrice = &unit
		view.TotalPrice = &total
	}
	return json.Marshal(view)
}
