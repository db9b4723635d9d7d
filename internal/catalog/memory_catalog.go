package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry as held by MemoryCatalog.
type Product struct {
	ID                string
	Name              string
	SKU               string
	Price             decimal.Decimal
	Stock             int
	LowStockThreshold int
	MaxPerOrder       int
	Variants          map[string]Variant
}

type Variant struct {
	ID    string
	Name  string
	SKU   string
	Price *decimal.Decimal
	Stock int
}

// MemoryCatalog implements Lookup, DiscountLookup and StockUpdater in memory.
type MemoryCatalog struct {
	mu        sync.RWMutex
	products  map[string]*Product
	discounts map[string]domain.DiscountRule
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		products:  make(map[string]*Product),
		discounts: make(map[string]domain.DiscountRule),
	}
}

// AddProduct inserts or replaces a product.
func (c *MemoryCatalog) AddProduct(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Variants == nil {
		p.Variants = make(map[string]Variant)
	}
	c.products[p.ID] = &p
}

func (c *MemoryCatalog) RemoveProduct(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, productID)
}

func (c *MemoryCatalog) SetPrice(productID string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.products[productID]; ok {
		p.Price = price
	}
}

func (c *MemoryCatalog) AddDiscount(rule domain.DiscountRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rule.Code = strings.ToUpper(rule.Code)
	c.discounts[rule.Code] = rule
}

func (c *MemoryCatalog) SetStock(_ context.Context, productID, variantID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if variantID == "" {
		p.Stock = quantity
		return nil
	}
	v, ok := p.Variants[variantID]
	if !ok {
		return domain.ErrVariantNotFound
	}
	v.Stock = quantity
	p.Variants[variantID] = v
	return nil
}

func (c *MemoryCatalog) Resolve(ctx context.Context, productID, variantID string) (domain.ProductFacts, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProductFacts{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[productID]
	if !ok {
		return domain.ProductFacts{}, domain.ErrProductNotFound
	}

	facts := domain.ProductFacts{
		ProductID: p.ID,
		Name:      p.Name,
		SKU:       p.SKU,
		UnitPrice: p.Price,
	}
	stock := p.Stock

	if variantID != "" {
		v, ok := p.Variants[variantID]
		if !ok {
			return domain.ProductFacts{}, domain.ErrVariantNotFound
		}
		facts.VariantID = v.ID
		facts.VariantName = v.Name
		if v.SKU != "" {
			facts.SKU = v.SKU
		}
		if v.Price != nil {
			facts.UnitPrice = *v.Price
		}
		stock = v.Stock
	}

	facts.InStock = stock > 0
	facts.LowStock = isLowStock(stock, p.LowStockThreshold)
	facts.MaxQuantity = maxQuantity(stock, p.MaxPerOrder)
	return facts, nil
}

func (c *MemoryCatalog) FindDiscount(ctx context.Context, code string) (domain.DiscountRule, error) {
	if err := ctx.Err(); err != nil {
		return domain.DiscountRule{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	rule, ok := c.discounts[strings.ToUpper(code)]
	if !ok {
		return domain.DiscountRule{}, domain.ErrDiscountNotFound
	}
	return rule, nil
}
