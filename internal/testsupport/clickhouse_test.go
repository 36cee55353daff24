package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
)

func TestClickHouseCleanupDropsTable(t *testing.T) {
	cfgs := RequireIntegration(t, ClickHouse)
	helper := NewClickHouseTestHelper(t, cfgs.ClickHouse)
	ctx := context.Background()

	table := helper.CreateTempTable(t, "record_id Int64, label String")
	require.NoError(t, helper.Client().Exec(ctx, "INSERT INTO "+table+" (record_id, label) VALUES (1, 'run')"))
	assert.Equal(t, uint64(1), helper.CountRows(t, table, "record_id = 1"))

	require.NoError(t, helper.CleanupTable(ctx, table))

	var exists uint8
	row := helper.Client().Conn().QueryRow(ctx, "EXISTS TABLE "+table)
	require.NoError(t, row.Scan(&exists))
	assert.Zero(t, exists)
}

func TestAuditEntryFixture(t *testing.T) {
	previous := classification.LabelWalk
	e := NewAuditEntryFixture().
		WithRecordID(42).
		WithLabel(classification.LabelMixed, &previous).
		Fallback(classification.ReasonNoActiveModel).
		Build()

	require.NoError(t, e.Validate())
	assert.Equal(t, int64(42), e.RecordID)
	assert.Equal(t, audit.SourceFallback, e.Source)
	assert.Nil(t, e.ModelID)
	assert.Equal(t, classification.ReasonNoActiveModel, e.Reason)

	many := NewAuditEntryFixture().BuildMany(3)
	require.Len(t, many, 3)
	assert.Equal(t, many[0].RecordID, many[2].RecordID)
	assert.True(t, many[2].ChangedAt.After(many[1].ChangedAt))
	assert.NotEqual(t, many[0].HistoryID, many[1].HistoryID)
}
