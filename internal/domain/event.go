package domain

import "time"

type EventType string

const (
	EventItemAdded       EventType = "item_added"
	EventItemRemoved     EventType = "item_removed"
	EventQuantityUpdated EventType = "quantity_updated"
	EventCartCleared     EventType = "cart_cleared"
	EventDiscountApplied EventType = "discount_applied"
	EventDiscountRemoved EventType = "discount_removed"
	EventShippingUpdated EventType = "shipping_updated"
	EventItemsRefreshed  EventType = "items_refreshed"
)

// CartEvent is emitted after a cart mutation has been validated and persisted.
type CartEvent struct {
	Type      EventType      `json:"type"`
	CartID    string         `json:"cartId"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
