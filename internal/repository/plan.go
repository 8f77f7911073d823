package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"panel-wallet/internal/model"
	"panel-wallet/internal/pkg/db"
)

// PlanRepository reads and edits the plan catalog.
type PlanRepository struct {
	q db.Querier
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(q db.Querier) *PlanRepository {
	return &PlanRepository{q: q}
}

// DefaultPrice returns the catalog price of a plan key, or nil when the key
// is unknown, disabled or has no usable price.
func (r *PlanRepository) DefaultPrice(ctx context.Context, key model.PlanKey) (*int64, error) {
	const query = `SELECT default_price FROM panel_plan WHERE plan_key = $1 AND enable`

	var raw string
	if err := r.q.QueryRow(ctx, query, string(key)).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get plan price: %w", err)
	}
	return model.ParsePrice(raw), nil
}

// List returns the whole catalog ordered by id.
func (r *PlanRepository) List(ctx context.Context) ([]*model.Plan, error) {
	const query = `SELECT id, name, plan_key, enable, default_price, created_at FROM panel_plan ORDER BY id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*model.Plan
	for rows.Next() {
		var p model.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.PlanKey, &p.Enable, &p.DefaultPrice, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}

	return plans, nil
}

// SetDefaultPrice updates the catalog price. An empty string unsets it.
func (r *PlanRepository) SetDefaultPrice(ctx context.Context, key model.PlanKey, price string) error {
	const query = `UPDATE panel_plan SET default_price = $2 WHERE plan_key = $1`

	tag, err := r.q.Exec(ctx, query, string(key), price)
	if err != nil {
		return fmt.Errorf("failed to set plan price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}
