package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	dbpkg "facegate-worker-go/internal/db"
)

// openTestDB returns a migrated in-memory database unique to the test
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Shared cache keeps the in-memory database alive across pool reconnects.
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		strings.ReplaceAll(t.Name(), "/", "_"),
	)

	conn, err := dbpkg.Open(context.Background(), dbpkg.Config{DSN: dsn})
	if err != nil {
		t.Fatalf("openTestDB: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestWriter(t *testing.T, conn *sql.DB) *dbpkg.Worker {
	t.Helper()

	w := dbpkg.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}
