package database

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	testPool     *pgxpool.Pool
	testPoolOnce sync.Once
	testPoolErr  error
)

// TestPool returns a pool shared by every integration test in the binary,
// with the schema and the stored procedures installed. It skips the test
// when TEST_DATABASE_URL is unset.
func TestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	testPoolOnce.Do(func() {
		ctx := context.Background()
		testPool, testPoolErr = Connect(ctx, dbURL, PoolOptions{MaxConns: 8})
		if testPoolErr != nil {
			return
		}
		if testPoolErr = RunMigrations(ctx, testPool); testPoolErr != nil {
			return
		}
		testPoolErr = InstallProcedures(ctx, testPool)
	})

	if testPoolErr != nil {
		t.Fatalf("failed to setup test database: %v", testPoolErr)
	}
	return testPool
}

// TestTx opens a transaction that is rolled back at cleanup. Parallel tests
// each get their own view of the schema without truncating tables.
//
//	tx := database.TestTx(t)
//	receipts := repository.NewReceiptRepository(tx)
func TestTx(t *testing.T) PGXDB {
	t.Helper()

	tx, err := TestPool(t).Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})
	return tx
}

// TestProfile inserts a profile row inside db and returns its id.
func TestProfile(t *testing.T, db PGXDB, phone string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.Exec(context.Background(),
		`INSERT INTO profiles (id, phone_number, email) VALUES ($1, NULLIF($2, ''), $3)`,
		id, phone, id.String()+"@test.billit.io")
	if err != nil {
		t.Fatalf("failed to insert profile: %v", err)
	}
	return id
}
