package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panel-wallet/internal/model"
)

type memStore struct {
	prices map[model.PlanKey]string
}

func (m *memStore) DefaultPrice(_ context.Context, key model.PlanKey) (*int64, error) {
	return model.ParsePrice(m.prices[key]), nil
}

func (m *memStore) List(context.Context) ([]*model.Plan, error) {
	var plans []*model.Plan
	for k, v := range m.prices {
		plans = append(plans, &model.Plan{PlanKey: k, DefaultPrice: v})
	}
	return plans, nil
}

func (m *memStore) SetDefaultPrice(_ context.Context, key model.PlanKey, price string) error {
	if _, ok := m.prices[key]; !ok {
		return errors.New("no such plan")
	}
	m.prices[key] = price
	return nil
}

type recordingInvalidator struct {
	keys []model.PlanKey
	err  error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, key model.PlanKey) error {
	r.keys = append(r.keys, key)
	return r.err
}

func TestAdmin_SetDefaultPriceInvalidates(t *testing.T) {
	store := &memStore{prices: map[model.PlanKey]string{model.Plan1M: "3000"}}
	inv := &recordingInvalidator{}
	admin := NewAdmin(store, inv)

	require.NoError(t, admin.SetDefaultPrice(context.Background(), model.Plan1M, "3500"))
	assert.Equal(t, "3500", store.prices[model.Plan1M])
	assert.Equal(t, []model.PlanKey{model.Plan1M}, inv.keys)
}

func TestAdmin_StoreErrorSkipsInvalidation(t *testing.T) {
	inv := &recordingInvalidator{}
	admin := NewAdmin(&memStore{prices: map[model.PlanKey]string{}}, inv)

	assert.Error(t, admin.SetDefaultPrice(context.Background(), model.Plan1M, "1"))
	assert.Empty(t, inv.keys)
}

func TestAdmin_InvalidationFailureIsNotFatal(t *testing.T) {
	store := &memStore{prices: map[model.PlanKey]string{model.Plan1M: ""}}
	admin := NewAdmin(store, &recordingInvalidator{err: errors.New("redis down")})

	assert.NoError(t, admin.SetDefaultPrice(context.Background(), model.Plan1M, "100"))
}

func TestAdmin_WithoutCache(t *testing.T) {
	store := &memStore{prices: map[model.PlanKey]string{model.Plan1M: ""}}
	admin := NewAdmin(store, nil)

	require.NoError(t, admin.SetDefaultPrice(context.Background(), model.Plan1M, "100"))
	plans, err := admin.List(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "100", plans[0].DefaultPrice)
}
