package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
)

func TestToMirrorRow(t *testing.T) {
	prev := classification.LabelWalk
	conf := 0.82
	id := uuid.New()
	at := time.Date(2025, 3, 1, 8, 0, 0, 123000, time.FixedZone("x", 3600))

	row := toMirrorRow(&audit.Entry{
		HistoryID:     11,
		RecordID:      7,
		PreviousLabel: &prev,
		NewLabel:      classification.LabelRun,
		Source:        audit.SourceModel,
		Method:        classification.MethodML,
		Confidence:    &conf,
		ModelID:       &id,
		ChangedBy:     "system",
		ChangedAt:     at,
		FeaturesUsed:  map[string]float64{"pace": 5.5},
	})

	assert.Equal(t, int64(11), row.HistoryID)
	assert.Equal(t, "walk", row.PreviousLabel)
	assert.Equal(t, "run", row.NewLabel)
	assert.Equal(t, "model", row.Source)
	assert.Equal(t, id.String(), row.ModelID)
	assert.Equal(t, time.UTC, row.ChangedAt.Location())
	assert.True(t, row.ChangedAt.Equal(at))
	assert.JSONEq(t, `{"pace":5.5}`, row.FeaturesUsed)
}

func TestToMirrorRow_Optionals(t *testing.T) {
	row := toMirrorRow(&audit.Entry{
		RecordID: 1,
		NewLabel: classification.LabelMixed,
		Source:   audit.SourceFallback,
		Method:   classification.MethodRuleFallback,
	})

	assert.Empty(t, row.PreviousLabel)
	assert.Empty(t, row.ModelID)
	assert.Nil(t, row.Confidence)
	assert.Equal(t, "{}", row.FeaturesUsed)
}

func TestAuditMirror_BacklogBeforeFlush(t *testing.T) {
	mirror := NewAuditMirror(nil)

	entries := []*audit.Entry{
		{HistoryID: 1, RecordID: 5, NewLabel: classification.LabelRun},
		{HistoryID: 2, RecordID: 5, NewLabel: classification.LabelWalk},
	}
	require.NoError(t, mirror.Mirror(context.Background(), entries))
	require.NoError(t, mirror.Mirror(context.Background(), nil))

	backlog := mirror.Backlog()
	assert.Equal(t, 2, backlog.Buffered)
	assert.Zero(t, backlog.Dropped)
}
