package catalog

import (
	"context"

	"github.com/rs/zerolog/log"

	"panel-wallet/internal/model"
)

// Store is the persistent plan catalog.
type Store interface {
	Source
	List(ctx context.Context) ([]*model.Plan, error)
	SetDefaultPrice(ctx context.Context, key model.PlanKey, price string) error
}

// Invalidator drops cached prices.
type Invalidator interface {
	Invalidate(ctx context.Context, key model.PlanKey) error
}

// Admin edits the catalog and keeps the price cache coherent.
type Admin struct {
	store Store
	cache Invalidator
}

// NewAdmin creates an Admin. cache may be nil when prices are not cached.
func NewAdmin(store Store, cache Invalidator) *Admin {
	return &Admin{store: store, cache: cache}
}

// List returns every plan.
func (a *Admin) List(ctx context.Context) ([]*model.Plan, error) {
	return a.store.List(ctx)
}

// SetDefaultPrice writes the price and evicts the cached copy. A failed
// eviction is logged; the entry then expires with its TTL.
func (a *Admin) SetDefaultPrice(ctx context.Context, key model.PlanKey, price string) error {
	if err := a.store.SetDefaultPrice(ctx, key, price); err != nil {
		return err
	}
	if a.cache == nil {
		return nil
	}
	if err := a.cache.Invalidate(ctx, key); err != nil {
		log.Warn().Err(err).Str("plan_key", string(key)).Msg("Stale price may be served until TTL expires")
	}
	return nil
}
