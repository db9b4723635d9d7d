package persistence

import (
	"context"
	"errors"
	"fmt"
)

// Storage is a durable key-value medium for cart snapshots.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var ErrNotFound = errors.New("snapshot not found")

// Key is the storage key of a cart.
func Key(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}
