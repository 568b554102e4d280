package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/cimillas/ultimate-parking/internal/domain"
	"github.com/cimillas/ultimate-parking/migrations"
)

const testDBLockID int64 = 702215502

var (
	postgresOnce sync.Once
	postgresDSN  string
	postgresErr  error
)

// NewTestPool connects to TEST_DATABASE_URL, or to a Postgres container started
// once per test binary. The test is skipped when neither is available.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = startPostgres(t)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	cfg.MaxConns = 8

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skipping Postgres integration tests: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
	})

	lockTestDB(t, pool)

	return pool
}

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration tests in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	postgresOnce.Do(func() {
		ctx := context.Background()
		ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("parking"),
			tcpostgres.WithUsername("parking"),
			tcpostgres.WithPassword("parking"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			postgresErr = err
			return
		}
		postgresDSN, postgresErr = ctr.ConnectionString(ctx, "sslmode=disable")
	})
	if postgresErr != nil {
		t.Skipf("skipping Postgres integration tests: %v", postgresErr)
	}
	return postgresDSN
}

func ApplyMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
}

func TruncateTickets(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(ctx, `TRUNCATE tickets`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

// InsertTicket writes a ticket row directly, bypassing the repository.
func InsertTicket(t *testing.T, ctx context.Context, pool *pgxpool.Pool, ticket domain.Ticket) {
	t.Helper()
	_, err := pool.Exec(ctx, `
INSERT INTO tickets (id, day, plate, brand, model, color, entry_at, exit_at, settled, amount)
VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ticket.ID, ticket.Day, ticket.Plate,
		ticket.Vehicle.Brand, ticket.Vehicle.Model, ticket.Vehicle.Color,
		ticket.EntryAt, ticket.ExitAt, ticket.Settled, ticket.Amount,
	)
	if err != nil {
		t.Fatalf("insert ticket: %v", err)
	}
}

func lockTestDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire lock conn: %v", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, testDBLockID); err != nil {
		conn.Release()
		t.Fatalf("acquire test lock: %v", err)
	}

	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, testDBLockID)
		conn.Release()
	})
}
