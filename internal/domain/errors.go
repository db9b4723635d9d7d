package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrQuantityExceedsStock = errors.New("quantity exceeds available stock")
	ErrOutOfStock           = errors.New("product is out of stock")
	ErrItemNotFound         = errors.New("item not found in cart")
	ErrProductNotFound      = errors.New("product not found")
	ErrVariantNotFound      = errors.New("variant not found")
	ErrDiscountNotFound     = errors.New("discount code not found")
	ErrCheckoutBlocked      = errors.New("cart cannot be checked out")
	ErrStoreClosed          = errors.New("cart store is closed")
)

// StockError carries the numbers behind ErrQuantityExceedsStock.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("product %s: requested %d, only %d available", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrQuantityExceedsStock
}
