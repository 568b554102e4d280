package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cimillas/ultimate-parking/internal/testutil"
	"github.com/cimillas/ultimate-parking/migrations"
)

func TestApply_RecordsMigrations(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `DROP TABLE IF EXISTS schema_migrations`)
	require.NoError(t, err)

	require.NoError(t, migrations.Apply(ctx, pool))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	require.GreaterOrEqual(t, count, 2)

	require.NoError(t, migrations.Apply(ctx, pool), "re-apply migrations")

	var count2 int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count2))
	require.Equal(t, count, count2, "migration count changed on re-apply")
}

func TestApply_SettledTicketsAreImmutable(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateTickets(t, ctx, pool)

	_, err := pool.Exec(ctx, `
INSERT INTO tickets (id, day, plate, entry_at, exit_at, settled, amount)
VALUES ('LOCKED', '2025-01-02', 'ABC123', NOW() - INTERVAL '1 hour', NOW(), TRUE, 15)`)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `UPDATE tickets SET amount = 0 WHERE id = 'LOCKED'`)
	require.Error(t, err)

	_, err = pool.Exec(ctx, `
INSERT INTO tickets (id, day, plate, entry_at, settled, amount)
VALUES ('BROKEN', '2025-01-02', 'ABC123', NOW(), FALSE, 15)`)
	require.Error(t, err, "open ticket with an amount must violate the settlement check")
}
