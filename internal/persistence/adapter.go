package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront-cart/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SchemaVersion is written into every snapshot. Snapshots with any other
// version are discarded on load.
const SchemaVersion = "1"

const rehydrateConcurrency = 8

// Resolver looks up catalog facts for a product/variant pair.
type Resolver interface {
	Resolve(ctx context.Context, productID, variantID string) (domain.ProductFacts, error)
}

// FailureRecorder observes persistence failures that are not returned to callers.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, op string, err error)
}

type snapshotItem struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	VariantID string    `json:"variantId,omitempty"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type snapshot struct {
	Version          string                  `json:"version"`
	LastUpdated      time.Time               `json:"lastUpdated"`
	Items            []snapshotItem          `json:"items"`
	ShippingOption   *domain.ShippingOption  `json:"shippingOption,omitempty"`
	AppliedDiscounts []domain.AppliedDiscount `json:"appliedDiscounts"`
}

// Adapter writes the minimal cart snapshot and rebuilds carts from it.
// Prices are never stored; they are re-resolved through the catalog on load.
type Adapter struct {
	storage  Storage
	resolver Resolver
	log      *zap.Logger
}

func NewAdapter(storage Storage, resolver Resolver, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		storage:  storage,
		resolver: resolver,
		log:      log,
	}
}

func (a *Adapter) Save(ctx context.Context, cartID string, state domain.CartState) error {
	snap := snapshot{
		Version:          SchemaVersion,
		LastUpdated:      state.LastUpdated,
		Items:            make([]snapshotItem, 0, len(state.Items)),
		ShippingOption:   state.Options.ShippingOption,
		AppliedDiscounts: state.Options.AppliedDiscounts,
	}
	if snap.AppliedDiscounts == nil {
		snap.AppliedDiscounts = []domain.AppliedDiscount{}
	}
	for _, item := range state.Items {
		snap.Items = append(snap.Items, snapshotItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}
	if err := a.storage.Set(ctx, Key(cartID), payload); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored cart with every item re-resolved through the catalog.
// A missing, corrupt or outdated snapshot yields an empty cart. Only storage
// read failures are returned, together with an empty cart.
func (a *Adapter) Load(ctx context.Context, cartID string) (domain.CartState, error) {
	empty := domain.CartState{Options: domain.CartOptions{AppliedDiscounts: []domain.AppliedDiscount{}}}

	payload, err := a.storage.Get(ctx, Key(cartID))
	if errors.Is(err, ErrNotFound) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("load snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		a.log.Warn("discarding corrupt cart snapshot", zap.String("cart_id", cartID), zap.Error(err))
		return empty, nil
	}
	if snap.Version != SchemaVersion {
		a.log.Info("discarding cart snapshot with unknown version",
			zap.String("cart_id", cartID),
			zap.String("version", snap.Version),
			zap.String("expected", SchemaVersion))
		return empty, nil
	}

	items := mergeSnapshotItems(snap.Items)
	a.rehydrate(ctx, cartID, items)

	state := domain.CartState{
		Items:       items,
		LastUpdated: snap.LastUpdated,
		Options: domain.CartOptions{
			ShippingOption:   snap.ShippingOption,
			AppliedDiscounts: snap.AppliedDiscounts,
		},
	}
	if state.Options.AppliedDiscounts == nil {
		state.Options.AppliedDiscounts = []domain.AppliedDiscount{}
	}
	return state, nil
}

// Delete removes the stored snapshot of a cart.
func (a *Adapter) Delete(ctx context.Context, cartID string) error {
	if err := a.storage.Delete(ctx, Key(cartID)); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func (a *Adapter) rehydrate(ctx context.Context, cartID string, items []domain.LineItem) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rehydrateConcurrency)

	for i := range items {
		item := &items[i]
		g.Go(func() error {
			facts, err := a.resolver.Resolve(gctx, item.ProductID, item.VariantID)
			switch {
			case err == nil:
				item.Resolve(facts)
			case errors.Is(err, domain.ErrVariantNotFound):
				item.MarkUnavailable(domain.ReasonVariantMissing)
			case errors.Is(err, domain.ErrProductNotFound):
				item.MarkUnavailable(domain.ReasonProductMissing)
			default:
				a.log.Warn("catalog lookup failed during rehydration, item left pending",
					zap.String("cart_id", cartID),
					zap.String("product_id", item.ProductID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// mergeSnapshotItems drops non-positive quantities and folds duplicate
// product/variant pairs into the first occurrence.
func mergeSnapshotItems(stored []snapshotItem) []domain.LineItem {
	items := make([]domain.LineItem, 0, len(stored))
	for _, s := range stored {
		if s.Quantity <= 0 || s.ProductID == "" {
			continue
		}
		merged := false
		for i := range items {
			if items[i].Matches(s.ProductID, s.VariantID) {
				items[i].Quantity += s.Quantity
				if s.UpdatedAt.After(items[i].UpdatedAt) {
					items[i].UpdatedAt = s.UpdatedAt
				}
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		item := domain.NewLineItem(s.ProductID, s.VariantID, s.Quantity, s.AddedAt)
		if s.ID != "" {
			item.ID = s.ID
		}
		item.UpdatedAt = s.UpdatedAt
		items = append(items, item)
	}
	return items
}
