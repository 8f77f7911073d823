package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panel-wallet/internal/config"
)

func TestPoolConfig_Defaults(t *testing.T) {
	pc, err := poolConfig(&config.DatabaseConfig{Host: "db", Port: 5432, User: "panel", Name: "panel"})
	require.NoError(t, err)

	assert.Equal(t, int32(defaultPoolSize), pc.MaxConns)
	assert.Equal(t, int32(defaultPoolSize/4), pc.MinConns)
	assert.Equal(t, defaultConnectTimeout, pc.ConnConfig.ConnectTimeout)
	assert.Equal(t, defaultMaxConnLifetime, pc.MaxConnLifetime)
	assert.Equal(t, defaultMaxConnIdleTime, pc.MaxConnIdleTime)
	assert.Equal(t, "db", pc.ConnConfig.Host)
	assert.Equal(t, "panel", pc.ConnConfig.Database)
}

func TestPoolConfig_Overrides(t *testing.T) {
	pc, err := poolConfig(&config.DatabaseConfig{
		Host:            "db",
		Port:            6543,
		User:            "panel",
		Name:            "ledger",
		PoolSize:        2,
		ConnectTimeout:  3 * time.Second,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(2), pc.MaxConns)
	assert.Equal(t, int32(1), pc.MinConns, "at least one warm connection")
	assert.Equal(t, 3*time.Second, pc.ConnConfig.ConnectTimeout)
	assert.Equal(t, 5*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, time.Minute, pc.MaxConnIdleTime)
	assert.Equal(t, uint16(6543), pc.ConnConfig.Port)
}
