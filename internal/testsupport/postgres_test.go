package testsupport

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresHelper_MigratesSchema(t *testing.T) {
	helper := NewTestPostgres(t)
	ctx := context.Background()

	for _, table := range pacelabTables {
		var name sql.NullString
		require.NoError(t, helper.DB().QueryRowContext(ctx, "SELECT to_regclass($1)::text", "public."+table).Scan(&name))
		assert.True(t, name.Valid, "table %s missing after migrate", table)
	}
}

func TestPostgresHelper_Truncate(t *testing.T) {
	helper := NewTestPostgres(t)
	ctx := context.Background()
	recordID := UniqueRecordID()

	_, err := helper.DB().ExecContext(ctx,
		`INSERT INTO activities (id, pace, distance, duration_seconds) VALUES ($1, 8.1, 5, 2430)`, recordID)
	require.NoError(t, err)

	helper.Truncate(t)

	var count int
	require.NoError(t, helper.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM activities").Scan(&count))
	assert.Zero(t, count)
}
