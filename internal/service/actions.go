package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront-cart/internal/domain"
	"go.uber.org/zap"
)

// AddItem adds quantity of a product (or variant) to the cart, merging into
// an existing line with the same identity. When the resulting quantity would
// exceed the purchasable limit the cart is left unchanged.
func (s *CartStore) AddItem(ctx context.Context, productID string, quantity int, variantID string) (domain.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.LineItem{}, domain.ErrStoreClosed
	}
	if quantity <= 0 {
		return domain.LineItem{}, domain.ErrInvalidQuantity
	}

	facts, err := s.lookup.Resolve(ctx, productID, variantID)
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("add item %s: %w", productID, err)
	}
	if !facts.InStock {
		return domain.LineItem{}, fmt.Errorf("add item %s: %w", productID, domain.ErrOutOfStock)
	}

	idx, exists := s.state.FindProduct(productID, variantID)
	newQuantity := quantity
	if exists {
		newQuantity += s.state.Items[idx].Quantity
	}
	if newQuantity > facts.MaxQuantity {
		return domain.LineItem{}, &domain.StockError{
			ProductID: productID,
			Requested: newQuantity,
			Available: facts.MaxQuantity,
		}
	}

	now := s.now()
	if exists {
		item := &s.state.Items[idx]
		item.Quantity = newQuantity
		item.UpdatedAt = now
		item.Resolve(facts)
	} else {
		item := domain.NewLineItem(productID, variantID, quantity, now)
		item.Resolve(facts)
		s.state.Items = append(s.state.Items, item)
		idx = len(s.state.Items) - 1
	}
	item := s.state.Items[idx]

	s.commit(ctx, domain.EventItemAdded, map[string]any{
		"itemId":    item.ID,
		"productId": productID,
		"variantId": variantID,
		"quantity":  quantity,
		"total":     item.Quantity,
	})
	return item, nil
}

// RemoveItem deletes a line. Unknown ids are ignored.
func (s *CartStore) RemoveItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStoreClosed
	}
	s.removeLocked(ctx, itemID)
	return nil
}

func (s *CartStore) removeLocked(ctx context.Context, itemID string) {
	idx, ok := s.state.FindItem(itemID)
	if !ok {
		return
	}
	removed := s.state.Items[idx]
	s.state.Items = append(s.state.Items[:idx:idx], s.state.Items[idx+1:]...)

	s.commit(ctx, domain.EventItemRemoved, map[string]any{
		"itemId":    removed.ID,
		"productId": removed.ProductID,
		"variantId": removed.VariantID,
		"quantity":  removed.Quantity,
	})
}

// UpdateQuantity sets the quantity of a line. Zero or less removes it.
func (s *CartStore) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStoreClosed
	}
	if quantity <= 0 {
		s.removeLocked(ctx, itemID)
		return nil
	}

	idx, ok := s.state.FindItem(itemID)
	if !ok {
		return domain.ErrItemNotFound
	}
	item := &s.state.Items[idx]

	maxQuantity, resolved := item.MaxQuantity()
	if !resolved {
		facts, err := s.lookup.Resolve(ctx, item.ProductID, item.VariantID)
		if err != nil {
			return fmt.Errorf("update quantity of %s: %w", item.ProductID, err)
		}
		item.Resolve(facts)
		maxQuantity = facts.MaxQuantity
	}
	if quantity > maxQuantity {
		return &domain.StockError{
			ProductID: item.ProductID,
			Requested: quantity,
			Available: maxQuantity,
		}
	}

	previous := item.Quantity
	item.Quantity = quantity
	item.UpdatedAt = s.now()

	s.commit(ctx, domain.EventQuantityUpdated, map[string]any{
		"itemId":           item.ID,
		"productId":        item.ProductID,
		"variantId":        item.VariantID,
		"previousQuantity": previous,
		"quantity":         quantity,
	})
	return nil
}

// ClearCart empties items, shipping selection and discounts at once.
func (s *CartStore) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStoreClosed
	}
	removed := len(s.state.Items)
	s.state.Items = nil
	s.state.Options = domain.CartOptions{AppliedDiscounts: []domain.AppliedDiscount{}}

	s.commit(ctx, domain.EventCartCleared, map[string]any{"removedItems": removed})
	return nil
}

func (s *CartStore) SetShippingOption(ctx context.Context, option *domain.ShippingOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStoreClosed
	}
	data := map[string]any{"shippingOptionId": ""}
	if option != nil {
		selected := *option
		s.state.Options.ShippingOption = &selected
		data["shippingOptionId"] = selected.ID
	} else {
		s.state.Options.ShippingOption = nil
	}

	s.commit(ctx, domain.EventShippingUpdated, data)
	return nil
}

// RefreshItems re-resolves every line through the catalog so stock and
// price changes show up in validation.
func (s *CartStore) RefreshItems(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStoreClosed
	}
	changed := s.refreshLocked(ctx)
	s.commit(ctx, domain.EventItemsRefreshed, map[string]any{"priceChanges": changed})
	return nil
}

func (s *CartStore) refreshLocked(ctx context.Context) int {
	priceChanges := 0
	for i := range s.state.Items {
		item := &s.state.Items[i]
		facts, err := s.lookup.Resolve(ctx, item.ProductID, item.VariantID)
		switch {
		case err == nil:
			item.Resolve(facts)
			if _, changed := item.PriceChange(); changed {
				priceChanges++
			}
		case errors.Is(err, domain.ErrVariantNotFound):
			item.MarkUnavailable(domain.ReasonVariantMissing)
		case errors.Is(err, domain.ErrProductNotFound):
			item.MarkUnavailable(domain.ReasonProductMissing)
		default:
			// keep the facts we have
			s.log.Warn("catalog refresh failed", zap.String("product_id", item.ProductID), zap.Error(err))
		}
	}
	return priceChanges
}

// BeginCheckout re-checks the cart against the catalog and, when it can be
// checked out, closes the cart panel. Items stay in the cart.
func (s *CartStore) BeginCheckout(ctx context.Context) (domain.CartSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.CartSummary{}, domain.ErrStoreClosed
	}
	changed := s.refreshLocked(ctx)
	s.commit(ctx, domain.EventItemsRefreshed, map[string]any{"priceChanges": changed})

	summary := s.summaryLocked()
	if !summary.CanCheckout {
		return summary, fmt.Errorf("%w: %d blocking issue(s)", domain.ErrCheckoutBlocked, len(summary.Validation.Errors))
	}
	s.open = false
	return summary, nil
}

func (s *CartStore) OpenCart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
}

func (s *CartStore) CloseCart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
}

// ToggleCart flips visibility and returns the new state.
func (s *CartStore) ToggleCart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = !s.open
	return s.open
}
