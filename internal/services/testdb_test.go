package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/securefinance/emilock/internal/database"
)

// newTestDB swaps the global connection for an in-memory store carrying
// just the columns the exercised statements touch. Restored on cleanup.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// One connection, or each pooled conn gets its own empty :memory: db
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.ExecContext(context.Background(), `CREATE TABLE customers (
		customer_id TEXT PRIMARY KEY,
		remote_command TEXT,
		status TEXT,
		error_message TEXT,
		updated_at TIMESTAMP,
		deleted_at TIMESTAMP
	)`); err != nil {
		t.Fatalf("create customers table: %v", err)
	}

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		db.Close()
	})
	return db
}
