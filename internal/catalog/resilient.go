package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/pkg/circuitbreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultLookupTimeout = 2 * time.Second

// Resilient guards catalog and discount lookups with a per-call timeout
// and a circuit breaker, and collapses concurrent identical lookups into one.
type Resilient struct {
	lookup    Lookup
	discounts DiscountLookup
	timeout   time.Duration

	products *circuitbreaker.Breaker[domain.ProductFacts]
	codes    *circuitbreaker.Breaker[domain.DiscountRule]
	sfg      singleflight.Group
}

func NewResilient(lookup Lookup, discounts DiscountLookup, timeout time.Duration, log *zap.Logger) *Resilient {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	onChange := func(name, from, to string) {
		log.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from),
			zap.String("to", to))
	}
	answered := func(err error) bool {
		return errors.Is(err, domain.ErrProductNotFound) ||
			errors.Is(err, domain.ErrVariantNotFound) ||
			errors.Is(err, domain.ErrDiscountNotFound)
	}

	return &Resilient{
		lookup:    lookup,
		discounts: discounts,
		timeout:   timeout,
		products: circuitbreaker.New[domain.ProductFacts](circuitbreaker.Settings{
			Name:          "catalog",
			IsSuccessful:  answered,
			OnStateChange: onChange,
		}),
		codes: circuitbreaker.New[domain.DiscountRule](circuitbreaker.Settings{
			Name:          "discounts",
			IsSuccessful:  answered,
			OnStateChange: onChange,
		}),
	}
}

func (r *Resilient) Resolve(ctx context.Context, productID, variantID string) (domain.ProductFacts, error) {
	key := "product:" + productID + "/" + variantID
	return shared(ctx, &r.sfg, key, func(ctx context.Context) (domain.ProductFacts, error) {
		return r.products.Execute(func() (domain.ProductFacts, error) {
			return r.lookup.Resolve(ctx, productID, variantID)
		})
	}, r.timeout)
}

func (r *Resilient) FindDiscount(ctx context.Context, code string) (domain.DiscountRule, error) {
	code = strings.ToUpper(code)
	return shared(ctx, &r.sfg, "discount:"+code, func(ctx context.Context) (domain.DiscountRule, error) {
		return r.codes.Execute(func() (domain.DiscountRule, error) {
			return r.discounts.FindDiscount(ctx, code)
		})
	}, r.timeout)
}

// shared runs fn once per key for all concurrent callers. The lookup is
// detached from the caller that started it and bounded by timeout; each
// caller stops waiting when its own ctx ends.
func shared[T any](ctx context.Context, sfg *singleflight.Group, key string, fn func(context.Context) (T, error), timeout time.Duration) (T, error) {
	ch := sfg.DoChan(key, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return fn(lookupCtx)
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
