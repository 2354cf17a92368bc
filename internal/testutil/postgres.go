// Package testutil provides a migrated Postgres pool for integration tests.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"storecart/internal/migrate"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// Pool returns a pool against TEST_DB_DSN, or against a throwaway
// postgres:16-alpine container when the variable is unset. Migrations are
// applied and all tables truncated. Skipped under -short.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	ctx := context.Background()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		containerOnce.Do(func() {
			containerDSN, containerErr = startContainer(ctx)
		})
		if containerErr != nil {
			t.Skipf("no TEST_DB_DSN and postgres container unavailable: %v", containerErr)
		}
		dsn = containerDSN
	}

	if err := migrate.Apply(ctx, dsn); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	Reset(ctx, t, pool)
	return pool
}

// Reset truncates every application table.
func Reset(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(ctx, `TRUNCATE cart_lines, carts, offerings, stores RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

// The container lives for the whole test binary; ryuk reaps it afterwards.
func startContainer(ctx context.Context) (string, error) {
	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storecart_test"),
		postgres.WithUsername("storecart"),
		postgres.WithPassword("storecart"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return "", err
	}
	return pg.ConnectionString(ctx, "sslmode=disable")
}

// SeedStore inserts a store and returns its id.
func SeedStore(ctx context.Context, t *testing.T, pool *pgxpool.Pool, key, currency string) string {
	t.Helper()
	var id string
	err := pool.QueryRow(ctx,
		`INSERT INTO stores (key, name, currency) VALUES ($1, $1, $2) RETURNING id::text`,
		key, currency,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert store: %v", err)
	}
	return id
}

// SeedOffering inserts a sellable offering and returns its id.
func SeedOffering(ctx context.Context, t *testing.T, pool *pgxpool.Pool, storeID, key, price string) string {
	t.Helper()
	var id string
	err := pool.QueryRow(ctx, `
INSERT INTO offerings (store_id, key, sku, name, price, currency)
SELECT $1, $2, upper($2), initcap($2), $3::numeric, s.currency
FROM stores s WHERE s.id = $1
RETURNING id::text`,
		storeID, key, price,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert offering: %v", err)
	}
	return id
}
