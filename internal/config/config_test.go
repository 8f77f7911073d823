package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 10*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal(t, "IRT", cfg.Ledger.Currency)
	assert.Equal(t, int64(1000), cfg.Ledger.MinDeposit)
	assert.Equal(t, 5*time.Minute, cfg.Redis.PriceTTL)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Bot.Enabled)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := `
database:
  host: db.internal
  name: wallet
admin:
  ids: [111, 222]
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
ledger:
  min_deposit: 5000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("DATABASE_HOST", "override.internal")
	t.Setenv("BOT_TOKEN", "123:abc")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, "wallet", cfg.Database.Name)
	assert.Equal(t, "123:abc", cfg.Bot.Token)
	assert.Equal(t, []int64{111, 222}, cfg.Admin.IDs)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, int64(5000), cfg.Ledger.MinDeposit)
	assert.True(t, cfg.IsAdmin(222))
	assert.False(t, cfg.IsAdmin(333))
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "postgres://u:p@h:5433/n?sslmode=disable", d.DSN())
}
