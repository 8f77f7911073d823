package service

import (
	"context"
	"fmt"

	"panel-wallet/internal/model"
	"panel-wallet/internal/pkg/db"
	"panel-wallet/internal/repository"
)

// PriceCatalog provides default plan prices; nil means not configured.
type PriceCatalog interface {
	DefaultPrice(ctx context.Context, key model.PlanKey) (*int64, error)
}

// PricingService resolves the unit price an account pays for a plan.
type PricingService struct {
	db      db.Querier
	catalog PriceCatalog
}

// NewPricingService creates a new PricingService.
func NewPricingService(q db.Querier, catalog PriceCatalog) *PricingService {
	return &PricingService{db: q, catalog: catalog}
}

// ResolveUnitPrice returns the unit price for acc, or nil when no price is
// configured. Personalized pricing, when enabled, fully replaces the catalog:
// an empty personalized field means not configured. Traffic (gig) is priced
// only by the account's traffic_price; the catalog carries no gig price.
func (s *PricingService) ResolveUnitPrice(ctx context.Context, acc *model.Account, key model.PlanKey) (*int64, error) {
	if key == model.PlanGig {
		if acc.TrafficPrice == nil || *acc.TrafficPrice <= 0 {
			return nil, nil
		}
		v := *acc.TrafficPrice
		return &v, nil
	}

	if acc.EnablePersonalizedPrice {
		price, mapped := acc.PersonalizedPrice(key)
		if !mapped || price == nil || *price < 0 {
			return nil, nil
		}
		v := *price
		return &v, nil
	}

	price, err := s.catalog.DefaultPrice(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default price: %w", err)
	}
	return price, nil
}

// Quote is the read-only variant used for display: no row lock is taken.
func (s *PricingService) Quote(ctx context.Context, accountID int64, planKey string) (*int64, error) {
	acc, err := repository.NewAccountRepository(s.db).GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.ResolveUnitPrice(ctx, acc, model.NormalizePlanKey(planKey))
}
