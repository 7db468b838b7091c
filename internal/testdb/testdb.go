// Package testdb provides the shared Postgres fixture for integration
// tests. Tests skip unless GRANJA_TEST_DSN points at a disposable database.
package testdb

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// New connects to GRANJA_TEST_DSN, applies migrations and truncates all
// tables so each test starts clean. The pool is closed on test cleanup.
func New(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("GRANJA_TEST_DSN")
	if dsn == "" {
		t.Skip("GRANJA_TEST_DSN not set; skipping integration test")
	}

	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	if err := goose.Up(sqlDB, migrationsDir(t)); err != nil {
		_ = sqlDB.Close()
		t.Fatalf("migrations: %v", err)
	}
	_ = sqlDB.Close()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		TRUNCATE transaction_lines, transactions, parties, movements, mortality,
		         vaccinations, flocks, sheds, article_log, recipes, articles
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot locate migrations dir")
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}
