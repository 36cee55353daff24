package testsupport

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"pacelab/internal/adapters/postgres"
)

// pacelabTables lists every migrated table, children first
var pacelabTables = []string{
	"feedback_processing",
	"classification_feedback",
	"classification_history",
	"activity_classifications",
	"activities",
	"model_clusters",
	"model_registry",
}

// testLockKey serialises Postgres integration tests across test binaries,
// since go test runs packages in parallel against the same database
const testLockKey int64 = 0x7061_6365_7465_7374

// PostgresTestHelper gives a test a migrated database whose pacelab tables
// are empty when the test starts and when it ends. Repositories commit their
// own transactions, so isolation comes from truncation, not rollback.
type PostgresTestHelper struct {
	client *postgres.Client
	lock   *sql.Conn
}

// NewTestPostgres skips unless the Postgres integration environment is set
func NewTestPostgres(t *testing.T) *PostgresTestHelper {
	t.Helper()

	cfgs := RequireIntegration(t, Postgres)
	client, err := postgres.NewClient(cfgs.Postgres)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	if err := client.Migrate(); err != nil {
		_ = client.Close()
		t.Fatalf("migrate test database: %v", err)
	}

	lock, err := client.DB().Conn(context.Background())
	if err != nil {
		_ = client.Close()
		t.Fatalf("reserve lock connection: %v", err)
	}
	if _, err := lock.ExecContext(context.Background(), "SELECT pg_advisory_lock($1)", testLockKey); err != nil {
		_ = lock.Close()
		_ = client.Close()
		t.Fatalf("take test lock: %v", err)
	}

	h := &PostgresTestHelper{client: client, lock: lock}
	h.Truncate(t)
	t.Cleanup(func() {
		h.Truncate(t)
		_, _ = lock.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", testLockKey)
		_ = lock.Close()
		_ = client.Close()
	})
	return h
}

func (h *PostgresTestHelper) DB() *sqlx.DB {
	return h.client.DB()
}

// Truncate empties every pacelab table and resets identity sequences
func (h *PostgresTestHelper) Truncate(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := fmt.Sprintf("TRUNCATE %s RESTART IDENTITY CASCADE", strings.Join(pacelabTables, ", "))
	if _, err := h.client.DB().ExecContext(ctx, query); err != nil {
		t.Fatalf("truncate pacelab tables: %v", err)
	}
}
