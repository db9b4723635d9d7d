package catalog

import (
	"context"

	"github.com/fjod/storefront-cart/internal/domain"
)

// Lookup resolves the current facts of a product or one of its variants.
// It returns domain.ErrProductNotFound or domain.ErrVariantNotFound when
// the catalog does not know the pair.
type Lookup interface {
	Resolve(ctx context.Context, productID, variantID string) (domain.ProductFacts, error)
}

// DiscountLookup returns the rule behind a discount code, or
// domain.ErrDiscountNotFound.
type DiscountLookup interface {
	FindDiscount(ctx context.Context, code string) (domain.DiscountRule, error)
}

// StockUpdater applies stock levels pushed by the inventory system.
type StockUpdater interface {
	SetStock(ctx context.Context, productID, variantID string, quantity int) error
}

// maxQuantity caps what one order may hold at the stock level and the
// per-order limit, whichever is lower. A zero limit means unlimited.
func maxQuantity(stock, perOrderLimit int) int {
	if stock < 0 {
		stock = 0
	}
	if perOrderLimit > 0 && perOrderLimit < stock {
		return perOrderLimit
	}
	return stock
}

func isLowStock(stock, threshold int) bool {
	return stock > 0 && stock <= threshold
}
