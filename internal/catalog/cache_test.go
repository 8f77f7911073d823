package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"panel-wallet/internal/config"
	"panel-wallet/internal/model"
	"panel-wallet/internal/pkg/db/dbtest"
)

type countingSource struct {
	mu     sync.Mutex
	prices map[model.PlanKey]*int64
	calls  int
	err    error
}

func (s *countingSource) DefaultPrice(_ context.Context, k model.PlanKey) (*int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.prices[k], nil
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if !dbtest.DockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := NewRedisClient(ctx, &config.RedisConfig{Addr: endpoint})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCache_HitsSourceOncePerKey(t *testing.T) {
	rdb := setupRedis(t)
	price := int64(3000)
	src := &countingSource{prices: map[model.PlanKey]*int64{model.Plan1M: &price}}
	cache := NewCache(rdb, src, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := cache.DefaultPrice(ctx, model.Plan1M)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(3000), *got)
	}
	assert.Equal(t, 1, src.calls)
}

func TestCache_CachesUnconfigured(t *testing.T) {
	rdb := setupRedis(t)
	src := &countingSource{prices: map[model.PlanKey]*int64{}}
	cache := NewCache(rdb, src, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := cache.DefaultPrice(ctx, model.Plan3M)
		require.NoError(t, err)
		assert.Nil(t, got, "unconfigured must stay nil, never zero")
	}
	assert.Equal(t, 1, src.calls)
}

func TestCache_Invalidate(t *testing.T) {
	rdb := setupRedis(t)
	price := int64(3000)
	src := &countingSource{prices: map[model.PlanKey]*int64{model.Plan1M: &price}}
	cache := NewCache(rdb, src, time.Minute)
	ctx := context.Background()

	_, err := cache.DefaultPrice(ctx, model.Plan1M)
	require.NoError(t, err)

	newPrice := int64(3500)
	src.prices[model.Plan1M] = &newPrice
	require.NoError(t, cache.Invalidate(ctx, model.Plan1M))

	got, err := cache.DefaultPrice(ctx, model.Plan1M)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), *got)
	assert.Equal(t, 2, src.calls)
}

func TestCache_FallsBackWhenRedisDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	price := int64(42)
	src := &countingSource{prices: map[model.PlanKey]*int64{model.PlanGig: &price}}
	cache := NewCache(rdb, src, time.Minute)

	got, err := cache.DefaultPrice(context.Background(), model.PlanGig)
	require.NoError(t, err)
	assert.Equal(t, int64(42), *got)
}

func TestCache_SourceErrorPropagates(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	boom := errors.New("db down")
	cache := NewCache(rdb, &countingSource{err: boom}, time.Minute)

	_, err := cache.DefaultPrice(context.Background(), model.Plan1M)
	assert.ErrorIs(t, err, boom)
}
