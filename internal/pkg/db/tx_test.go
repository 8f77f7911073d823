package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panel-wallet/internal/pkg/db"
	"panel-wallet/internal/pkg/db/dbtest"
)

func countUsers(t *testing.T, q db.Querier) int {
	var n int
	require.NoError(t, q.QueryRow(context.Background(), `SELECT COUNT(*) FROM panel_users`).Scan(&n))
	return n
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()

	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO panel_users (name, credit) VALUES ('a', 10)`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countUsers(t, pool))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO panel_users (name, credit) VALUES ('a', 10)`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countUsers(t, pool))
}

func TestMigrate_Idempotent(t *testing.T) {
	pool := dbtest.Setup(t)

	require.NoError(t, db.Migrate(context.Background(), pool))

	var plans int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM panel_plan`).Scan(&plans))
	assert.Equal(t, 6, plans)
}

func TestHealthCheck_ReportsMissingSchema(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	p := &db.Pool{Pool: pool}

	require.NoError(t, p.HealthCheck(ctx))

	_, err := pool.Exec(ctx, `DROP TABLE panel_plan`)
	require.NoError(t, err)

	err = p.HealthCheck(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panel_plan")
}
