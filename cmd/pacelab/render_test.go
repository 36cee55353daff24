package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
	"pacelab/internal/domain/model"
	"pacelab/internal/services/modelops"
)

func init() {
	color.NoColor = true
}

func testModel() *model.TrainedModel {
	now := time.Now().Add(-2 * time.Hour)
	return &model.TrainedModel{
		ID:             uuid.MustParse("6f1c2b64-3f0e-4d53-9a55-0f6d0c1e2a11"),
		Version:        3,
		TrainedAt:      now,
		ActivatedAt:    &now,
		ClusterCount:   2,
		LabelMap:       map[int]classification.Label{1: classification.LabelWalk, 0: classification.LabelRun},
		FeatureColumns: []string{"pace", "distance", "duration_minutes"},
		TrainingWindow: activity.TrainingWindow{
			Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
			Count: 1500,
		},
		Metrics: model.PerformanceMetrics{SeparationScore: 0.812},
		ClusterStats: []model.ClusterStats{
			{Cluster: 0, Label: classification.LabelRun, Count: 900, MeanPace: 8.03},
			{Cluster: 1, Label: classification.LabelWalk, Count: 600, MeanPace: 23.75},
		},
		Status: model.StatusActive,
	}
}

func TestLabelList(t *testing.T) {
	assert.Equal(t, "0:run 1:walk", labelList(testModel().LabelMap))
	assert.Equal(t, "", labelList(nil))
}

func TestRenderStatus(t *testing.T) {
	m := testModel()

	t.Run("no active model", func(t *testing.T) {
		var buf bytes.Buffer
		renderStatus(&buf, &modelops.Status{})
		assert.Contains(t, buf.String(), "no active model")
	})

	t.Run("healthy", func(t *testing.T) {
		var buf bytes.Buffer
		renderStatus(&buf, &modelops.Status{
			Active:    true,
			Model:     modelops.Summarize(m),
			Integrity: &model.IntegrityReport{ModelID: m.ID, ArtifactPresent: true, IDsMatch: true},
			Loaded:    true,
		})
		out := buf.String()
		assert.Contains(t, out, m.ID.String())
		assert.Contains(t, out, "(v3)")
		assert.Contains(t, out, "1,500 records")
		assert.Contains(t, out, "integrity:  OK")
		assert.Contains(t, out, "2 hours ago")
		assert.Contains(t, out, confidenceNote)
		assert.NotContains(t, out, "not serving")
	})

	t.Run("drift", func(t *testing.T) {
		var buf bytes.Buffer
		renderStatus(&buf, &modelops.Status{
			Active:    true,
			Model:     modelops.Summarize(m),
			Integrity: &model.IntegrityReport{ModelID: m.ID, Detail: "artifact missing"},
		})
		out := buf.String()
		assert.Contains(t, out, "MISMATCH artifact missing")
		assert.Contains(t, out, "not serving")
	})
}

func TestRenderBatch(t *testing.T) {
	version := 3
	id := testModel().ID
	batch := &modelops.BatchResult{
		Results: []classification.Result{
			{RecordID: 1, Label: classification.LabelRun, Confidence: 0.93, Method: classification.MethodML, ModelID: &id, ModelVersion: &version},
			{RecordID: 2, Label: classification.LabelMixed, Confidence: 0.4, Method: classification.MethodRuleFallback, FallbackReason: classification.ReasonInvalidFeatures},
		},
		AuditStored: 2,
		Warnings:    []string{"projection update failed"},
	}

	var buf bytes.Buffer
	renderBatch(&buf, batch)
	out := buf.String()
	assert.Contains(t, out, "model v3")
	assert.Contains(t, out, classification.ReasonInvalidFeatures)
	assert.Contains(t, out, "2 classified, 2 audit rows stored")
	assert.Contains(t, out, "warning: projection update failed")
}

func TestRenderHistory(t *testing.T) {
	var empty bytes.Buffer
	renderHistory(&empty, 9, nil)
	assert.Equal(t, "No history for record 9\n", empty.String())

	previous := classification.LabelRun
	confidence := 0.8
	entries := []*audit.Entry{
		{RecordID: 9, PreviousLabel: &previous, NewLabel: classification.LabelWalk, Source: audit.SourceUser,
			Method: classification.MethodManual, Confidence: &confidence, ChangedBy: "user", ChangedAt: time.Now(), Reason: "feedback:correct"},
		{RecordID: 9, NewLabel: classification.LabelRun, Source: audit.SourceModel,
			Method: classification.MethodML, ChangedBy: "system", ChangedAt: time.Now().Add(-time.Hour)},
	}

	var buf bytes.Buffer
	renderHistory(&buf, 9, entries)
	out := buf.String()
	assert.Contains(t, out, "run → walk")
	assert.Contains(t, out, "feedback:correct")
	assert.Contains(t, out, "0.80")
}

func TestRenderOutcome(t *testing.T) {
	var buf bytes.Buffer
	renderOutcome(&buf, &modelops.TrainingOutcome{Kind: "insufficient_data", Message: "need 5 samples"})
	assert.Contains(t, buf.String(), "training failed (insufficient_data)")

	buf.Reset()
	renderOutcome(&buf, &modelops.TrainingOutcome{
		Success: true, Kind: modelops.KindTrained, Message: "model trained and activated",
		Model: testModel(), Activated: true, Duration: 1500 * time.Millisecond,
	})
	out := buf.String()
	assert.Contains(t, out, "model trained and activated in 1.5s")
	assert.Contains(t, out, "samples:    1,500")
}

func TestRenderModels(t *testing.T) {
	var buf bytes.Buffer
	renderModels(&buf, nil)
	assert.Equal(t, "No models registered\n", buf.String())

	archived := testModel()
	archived.Status = model.StatusArchived
	archived.Version = 2

	buf.Reset()
	renderModels(&buf, []*model.TrainedModel{testModel(), archived})
	out := buf.String()
	assert.Contains(t, out, "active")
	assert.Contains(t, out, "archived")
	assert.Contains(t, out, "0:run 1:walk")
}

func TestRenderStats(t *testing.T) {
	var buf bytes.Buffer
	renderStats(&buf, nil)
	assert.Equal(t, "No decisions recorded\n", buf.String())

	buf.Reset()
	renderStats(&buf, []audit.SourceStats{{Source: audit.SourceModel, Count: 1200, AvgConfidence: 0.71}})
	assert.Contains(t, buf.String(), "1,200")
	assert.Contains(t, buf.String(), "0.71")
}
