package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
	"pacelab/internal/testsupport"
)

func historyEntry(recordID int64, label classification.Label, at time.Time) *audit.Entry {
	c := 0.75
	return &audit.Entry{
		RecordID:     recordID,
		NewLabel:     label,
		Source:       audit.SourceModel,
		Confidence:   &c,
		Method:       classification.MethodML,
		ChangedBy:    "integration-test",
		ChangedAt:    at,
		FeaturesUsed: map[string]float64{"pace": 8.1},
	}
}

func TestAuditRepository_AppendAndHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)

	repo := NewAuditRepository(testDB.DB())
	ctx := context.Background()
	recordID := testsupport.UniqueRecordID()
	base := time.Now().UTC().Truncate(time.Microsecond)

	first := historyEntry(recordID, "walk", base)
	require.NoError(t, repo.Append(ctx, first))
	assert.NotZero(t, first.HistoryID)

	second := historyEntry(recordID, "run", base.Add(time.Microsecond))
	prev := classification.Label("walk")
	second.PreviousLabel = &prev
	second.Reason = "model retrained"
	require.NoError(t, repo.Append(ctx, second))

	history, err := repo.History(ctx, recordID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.HistoryID, history[0].HistoryID)
	require.NotNil(t, history[0].PreviousLabel)
	assert.Equal(t, prev, *history[0].PreviousLabel)
	assert.Equal(t, "model retrained", history[0].Reason)
	assert.Equal(t, 8.1, history[1].FeaturesUsed["pace"])
}

func TestAuditRepository_AppendBatchSkipsRejectedRows(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)

	repo := NewAuditRepository(testDB.DB())
	ctx := context.Background()
	recordID := testsupport.UniqueRecordID()
	now := time.Now().UTC()

	bad := historyEntry(recordID, "run", now.Add(time.Microsecond))
	bad.Source = "robot" // violates the source CHECK constraint

	stored, err := repo.AppendBatch(ctx, []*audit.Entry{
		historyEntry(recordID, "walk", now),
		bad,
		historyEntry(recordID, "mixed", now.Add(2*time.Microsecond)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Zero(t, bad.HistoryID)

	history, err := repo.History(ctx, recordID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestFeedbackRepository_ProcessingLog(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)

	repo := NewFeedbackRepository(testDB.DB())
	ctx := context.Background()

	before, err := repo.CountUnprocessed(ctx)
	require.NoError(t, err)

	user := classification.Label("walk")
	f := &audit.Feedback{
		ID:           uuid.New(),
		RecordID:     testsupport.UniqueRecordID(),
		AILabel:      "run",
		AIConfidence: 0.6,
		UserLabel:    &user,
		Type:         audit.FeedbackCorrect,
		SubmittedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, f))

	count, err := repo.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, count)

	require.NoError(t, repo.MarkProcessed(ctx, []uuid.UUID{f.ID}, uuid.New(), time.Now()))
	// Marking twice is harmless
	require.NoError(t, repo.MarkProcessed(ctx, []uuid.UUID{f.ID}, uuid.New(), time.Now()))

	count, err = repo.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, count)
}

func TestClassificationRepository_UpsertCountsLabelChanges(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)

	repo := NewClassificationRepository(testDB.DB())
	ctx := context.Background()
	recordID := testsupport.UniqueRecordID()

	row := func(label classification.Label) *classification.Current {
		return &classification.Current{
			RecordID:     recordID,
			Label:        label,
			Confidence:   0.4,
			Method:       classification.MethodRuleFallback,
			ClassifiedAt: time.Now().UTC(),
		}
	}

	require.NoError(t, repo.Upsert(ctx, []*classification.Current{row("walk")}))
	require.NoError(t, repo.Upsert(ctx, []*classification.Current{row("walk")}))
	require.NoError(t, repo.Upsert(ctx, []*classification.Current{row("run")}))

	current, err := repo.GetCurrent(ctx, []int64{recordID})
	require.NoError(t, err)
	require.Contains(t, current, recordID)
	assert.Equal(t, classification.Label("run"), current[recordID].Label)
	assert.Equal(t, 1, current[recordID].ChangeCount)
}

func TestAuditRepository_DeletingActivityCascades(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	db := testDB.DB()
	ctx := context.Background()

	activities := NewActivityRepository(db)
	audits := NewAuditRepository(db)
	feedback := NewFeedbackRepository(db)
	projection := NewClassificationRepository(db)

	started := time.Now().UTC().Add(-time.Hour)
	owned := &activity.Record{Timestamp: &started, Pace: 8.1, Distance: 5, DurationSeconds: 2430}
	kept := &activity.Record{Timestamp: &started, Pace: 23.9, Distance: 2, DurationSeconds: 2870}
	require.NoError(t, activities.Insert(ctx, []*activity.Record{owned, kept}))

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, audits.Append(ctx, historyEntry(owned.ID, "run", now)))
	require.NoError(t, audits.Append(ctx, historyEntry(kept.ID, "walk", now)))
	require.NoError(t, feedback.Create(ctx, &audit.Feedback{
		ID:           uuid.New(),
		RecordID:     owned.ID,
		AILabel:      "run",
		AIConfidence: 0.8,
		Type:         audit.FeedbackAccept,
		SubmittedAt:  now,
	}))
	require.NoError(t, projection.Upsert(ctx, []*classification.Current{{
		RecordID:     owned.ID,
		Label:        "run",
		Confidence:   0.8,
		Method:       classification.MethodML,
		ClassifiedAt: now,
	}}))

	_, err := db.ExecContext(ctx, "DELETE FROM activities WHERE id = $1", owned.ID)
	require.NoError(t, err)

	history, err := audits.History(ctx, owned.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	pending, err := feedback.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	current, err := projection.GetCurrent(ctx, []int64{owned.ID})
	require.NoError(t, err)
	assert.NotContains(t, current, owned.ID)

	// History of a live record still refuses deletes
	_, err = db.ExecContext(ctx, "DELETE FROM classification_history WHERE record_id = $1", kept.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	history, err = audits.History(ctx, kept.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAuditRepository_HistoryOfUnknownRecordIsImmutable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	db := testDB.DB()
	ctx := context.Background()

	// Records classified from a file never reach the activities table
	recordID := testsupport.UniqueRecordID()
	require.NoError(t, NewAuditRepository(db).Append(ctx, historyEntry(recordID, "mixed", time.Now().UTC())))

	_, err := db.ExecContext(ctx, "DELETE FROM classification_history WHERE record_id = $1", recordID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}
