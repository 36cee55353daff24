package audit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
	"pacelab/internal/repository/memory"
	"pacelab/pkg/errors"
)

type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) Mirror(ctx context.Context, entries []*audit.Entry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func conf(v float64) *float64 { return &v }

func entry(recordID int64, label classification.Label) *audit.Entry {
	return &audit.Entry{
		RecordID:   recordID,
		NewLabel:   label,
		Source:     audit.SourceModel,
		Method:     classification.MethodML,
		Confidence: conf(0.8),
		ChangedBy:  "test",
	}
}

func TestTrail_HistoryStrictlyDescending(t *testing.T) {
	trail := audit.NewTrail(memory.NewAuditRepository(), memory.NewFeedbackRepository(), nil)
	ctx := context.Background()

	labels := []classification.Label{"walk", "run", "mixed", "run", "walk"}
	for _, l := range labels {
		require.NoError(t, trail.AppendEntry(ctx, entry(42, l)))
	}
	require.NoError(t, trail.AppendEntry(ctx, entry(7, "run")))

	history, err := trail.GetHistory(ctx, 42)
	require.NoError(t, err)
	require.Len(t, history, len(labels))

	for i := 1; i < len(history); i++ {
		assert.True(t, history[i-1].ChangedAt.After(history[i].ChangedAt),
			"entry %d not newer than entry %d", i-1, i)
	}
	assert.Equal(t, classification.Label("walk"), history[0].NewLabel)
	assert.Equal(t, classification.Label("walk"), history[len(history)-1].NewLabel)
}

func TestTrail_AppendBatchCountsMalformedRows(t *testing.T) {
	trail := audit.NewTrail(memory.NewAuditRepository(), memory.NewFeedbackRepository(), nil)
	ctx := context.Background()

	entries := []*audit.Entry{
		entry(1, "run"),
		entry(2, ""), // missing label
		entry(3, "walk"),
		{RecordID: 4, NewLabel: "run", Source: "robot", Method: classification.MethodML},
		{RecordID: 5, NewLabel: "run", Source: audit.SourceModel, Method: classification.MethodML, Confidence: conf(1.5)},
		entry(6, "mixed"),
	}

	success, failure, err := trail.AppendBatch(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 3, success)
	assert.Equal(t, 3, failure)

	for _, id := range []int64{1, 3, 6} {
		history, err := trail.GetHistory(ctx, id)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	}
	history, err := trail.GetHistory(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTrail_AppendBatchCountsStoreFailures(t *testing.T) {
	repo := memory.NewAuditRepository()
	repo.FailRecord[2] = true
	mirror := new(MockMirror)
	mirror.On("Mirror", mock.Anything, mock.MatchedBy(func(es []*audit.Entry) bool {
		return len(es) == 2
	})).Return(nil).Once()

	trail := audit.NewTrail(repo, memory.NewFeedbackRepository(), mirror)

	success, failure, err := trail.AppendBatch(context.Background(), []*audit.Entry{
		entry(1, "run"), entry(2, "run"), entry(3, "walk"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, success)
	assert.Equal(t, 1, failure)
	mirror.AssertExpectations(t)
}

func TestTrail_AppendEntryFailureIsAuditWrite(t *testing.T) {
	repo := memory.NewAuditRepository()
	repo.FailRecord[9] = true
	trail := audit.NewTrail(repo, memory.NewFeedbackRepository(), nil)

	err := trail.AppendEntry(context.Background(), entry(9, "run"))
	assert.ErrorIs(t, err, errors.ErrAuditWrite)
	assert.Equal(t, "audit_write", errors.Kind(err))
}

func TestTrail_MirrorFailureIsNotFatal(t *testing.T) {
	mirror := new(MockMirror)
	mirror.On("Mirror", mock.Anything, mock.Anything).Return(errors.New("clickhouse down"))

	trail := audit.NewTrail(memory.NewAuditRepository(), memory.NewFeedbackRepository(), mirror)
	assert.NoError(t, trail.AppendEntry(context.Background(), entry(1, "run")))
	mirror.AssertExpectations(t)
}

func TestTrail_GetStats(t *testing.T) {
	trail := audit.NewTrail(memory.NewAuditRepository(), memory.NewFeedbackRepository(), nil)
	ctx := context.Background()

	require.NoError(t, trail.AppendEntry(ctx, entry(1, "run")))
	e := entry(2, "walk")
	e.Confidence = conf(0.4)
	require.NoError(t, trail.AppendEntry(ctx, e))
	fb := &audit.Entry{RecordID: 3, NewLabel: "walk", Source: audit.SourceFallback, Method: classification.MethodRuleFallback, Confidence: conf(0.4)}
	require.NoError(t, trail.AppendEntry(ctx, fb))

	stats, err := trail.GetStats(ctx, audit.StatsFilter{})
	require.NoError(t, err)
	require.Len(t, stats, 2)

	bySource := map[audit.Source]audit.SourceStats{}
	for _, s := range stats {
		bySource[s.Source] = s
	}
	assert.Equal(t, 2, bySource[audit.SourceModel].Count)
	assert.InDelta(t, 0.6, bySource[audit.SourceModel].AvgConfidence, 1e-9)
	assert.Equal(t, 1, bySource[audit.SourceFallback].Count)

	future := time.Now().Add(time.Hour)
	stats, err = trail.GetStats(ctx, audit.StatsFilter{Since: &future})
	require.NoError(t, err)
	assert.Empty(t, stats)

	past := time.Now().Add(-time.Hour)
	_, err = trail.GetStats(ctx, audit.StatsFilter{Since: &future, Until: &past})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestTrail_Feedback(t *testing.T) {
	trail := audit.NewTrail(memory.NewAuditRepository(), memory.NewFeedbackRepository(), nil)
	ctx := context.Background()

	walk := classification.Label("walk")
	certainty := 4
	submitted := make([]*audit.Feedback, 0)
	for i := int64(1); i <= 3; i++ {
		f := &audit.Feedback{
			RecordID:     i,
			AILabel:      "run",
			AIConfidence: 0.7,
			UserLabel:    &walk,
			Type:         audit.FeedbackCorrect,
			Certainty:    &certainty,
		}
		require.NoError(t, trail.SubmitFeedback(ctx, f))
		assert.NotEqual(t, uuid.Nil, f.ID)
		submitted = append(submitted, f)
	}

	pending, err := trail.ListUnprocessedFeedback(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, submitted[0].ID, pending[0].ID)

	require.NoError(t, trail.MarkFeedbackProcessed(ctx, []uuid.UUID{submitted[0].ID, submitted[1].ID}, uuid.New()))

	count, err := trail.CountUnprocessedFeedback(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFeedback_Validate(t *testing.T) {
	bad := 9
	tests := []struct {
		name string
		f    audit.Feedback
	}{
		{"unknown type", audit.Feedback{AILabel: "run", Type: "meh"}},
		{"missing ai label", audit.Feedback{Type: audit.FeedbackAccept}},
		{"correction without label", audit.Feedback{AILabel: "run", Type: audit.FeedbackCorrect}},
		{"certainty out of range", audit.Feedback{AILabel: "run", Type: audit.FeedbackAccept, Certainty: &bad}},
		{"confidence out of range", audit.Feedback{AILabel: "run", Type: audit.FeedbackAccept, AIConfidence: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.f.Validate(), errors.ErrInvalidInput)
		})
	}
}

func TestClock_StrictlyIncreasingUnderContention(t *testing.T) {
	clock := audit.NewClock()

	const workers, perWorker = 8, 200
	results := make(chan time.Time, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				results <- clock.Now()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[time.Time]bool)
	for ts := range results {
		assert.False(t, seen[ts], "duplicate timestamp %v", ts)
		seen[ts] = true
		assert.Equal(t, ts, ts.Truncate(time.Microsecond))
	}
}
