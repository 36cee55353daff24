package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"pacelab/internal/adapters/clickhouse"
	"pacelab/internal/adapters/config"
	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
)

// ClickHouseTestHelper manages cleanup for ClickHouse integration tests.
type ClickHouseTestHelper struct {
	client *clickhouse.Client
}

// NewClickHouseTestHelper creates a ClickHouse client for tests.
func NewClickHouseTestHelper(t *testing.T, cfg config.ClickHouseConfig) *ClickHouseTestHelper {
	t.Helper()

	client, err := clickhouse.NewClient(cfg)
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}

	helper := &ClickHouseTestHelper{client: client}
	t.Cleanup(func() { _ = client.Close() })
	return helper
}

// Client exposes the raw ClickHouse client for queries.
func (h *ClickHouseTestHelper) Client() *clickhouse.Client {
	return h.client
}

// CreateTempTable creates a temporary table and registers cleanup.
func (h *ClickHouseTestHelper) CreateTempTable(t *testing.T, schema string) string {
	t.Helper()

	table := fmt.Sprintf("tmp_test_%d", time.Now().UnixNano())
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree() ORDER BY tuple()", table, schema)

	if err := h.client.Exec(context.Background(), query); err != nil {
		t.Fatalf("failed to create clickhouse table: %v", err)
	}

	t.Cleanup(func() {
		_ = h.client.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
	})

	return table
}

// CleanupTable drops the provided table immediately.
func (h *ClickHouseTestHelper) CleanupTable(ctx context.Context, table string) error {
	return h.client.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
}

// RegisterTableCleanup deletes matching rows from a shared table when the test ends
func (h *ClickHouseTestHelper) RegisterTableCleanup(t *testing.T, table, condition string) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.client.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, condition))
	})
}

// CountRows counts rows matching condition
func (h *ClickHouseTestHelper) CountRows(t *testing.T, table, condition string) uint64 {
	t.Helper()

	var count uint64
	row := h.client.Conn().QueryRow(context.Background(),
		fmt.Sprintf("SELECT count() FROM %s FINAL WHERE %s", table, condition))
	if err := row.Scan(&count); err != nil {
		t.Fatalf("failed to count rows in %s: %v", table, err)
	}
	return count
}

// AuditEntryFixture builds audit entries for mirror tests
type AuditEntryFixture struct {
	entry audit.Entry
}

// NewAuditEntryFixture returns an ML decision for a fresh record
func NewAuditEntryFixture() *AuditEntryFixture {
	confidence := 0.9
	modelID := uuid.New()
	return &AuditEntryFixture{
		entry: audit.Entry{
			HistoryID:    int64(NextSequence()),
			RecordID:     UniqueRecordID(),
			NewLabel:     classification.LabelRun,
			Source:       audit.SourceModel,
			Method:       classification.MethodML,
			Confidence:   &confidence,
			ModelID:      &modelID,
			ChangedBy:    "system",
			ChangedAt:    time.Now().UTC().Truncate(time.Microsecond),
			FeaturesUsed: map[string]float64{"pace": 8.1, "distance": 5, "duration_minutes": 40.5},
		},
	}
}

// WithRecordID sets the record
func (f *AuditEntryFixture) WithRecordID(id int64) *AuditEntryFixture {
	f.entry.RecordID = id
	return f
}

// WithLabel sets the new label and, optionally, the one it replaced
func (f *AuditEntryFixture) WithLabel(label classification.Label, previous *classification.Label) *AuditEntryFixture {
	f.entry.NewLabel = label
	f.entry.PreviousLabel = previous
	return f
}

// Fallback turns the entry into a rule-based decision without a model
func (f *AuditEntryFixture) Fallback(reason string) *AuditEntryFixture {
	f.entry.Source = audit.SourceFallback
	f.entry.Method = classification.MethodRuleFallback
	f.entry.ModelID = nil
	f.entry.Reason = reason
	return f
}

// Build returns a copy of the entry
func (f *AuditEntryFixture) Build() *audit.Entry {
	e := f.entry
	return &e
}

// BuildMany returns count entries for the same record, one minute apart
func (f *AuditEntryFixture) BuildMany(count int) []*audit.Entry {
	entries := make([]*audit.Entry, count)
	for i := 0; i < count; i++ {
		e := f.entry
		e.HistoryID = int64(NextSequence())
		e.ChangedAt = f.entry.ChangedAt.Add(time.Duration(i) * time.Minute)
		entries[i] = &e
	}
	return entries
}
