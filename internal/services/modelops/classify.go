package modelops

import (
	"context"
	"fmt"
	"math"
	"time"

	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
	"pacelab/internal/metrics"
)

// Classify labels every record independently with the model loaded at call
// time. It always returns one result per record; audit and projection
// failures only raise warning flags on the batch.
func (s *Service) Classify(ctx context.Context, records []activity.Record) (*BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	started := time.Now()
	m := s.active.Load()
	at := s.now().UTC()

	batch := &BatchResult{Results: make([]classification.Result, 0, len(records))}
	entries := make([]*audit.Entry, 0, len(records))

	previous := s.currentLabels(ctx, records, batch)

	for _, r := range records {
		decision := s.classifier.Decide(m, r)
		res := decision.Result(r.ID, at)
		batch.Results = append(batch.Results, res)
		metrics.RecordClassification(res.Method.String(), res.Label.String(), res.FallbackReason)
		if res.FallbackReason == classification.ReasonInvalidFeatures {
			s.fallbackLog.Do(func() {
				s.log.Warnw("Record features unusable, fell back to era rule", "record_id", r.ID)
			})
		}

		entries = append(entries, s.auditEntry(r, res, previous[r.ID]))
		label := res.Label
		previous[r.ID] = &label
	}

	stored, failed, err := s.trail.AppendBatch(ctx, entries)
	batch.AuditStored, batch.AuditFailures = stored, failed
	metrics.RecordAuditWrites(stored, failed)
	if err != nil || failed > 0 {
		batch.AuditWarning = true
		if err != nil {
			batch.warn("audit: " + err.Error())
		} else {
			batch.warn(fmt.Sprintf("audit: %d of %d entries not recorded", failed, len(entries)))
		}
		s.log.Warnw("Audit trail incomplete for batch", "stored", stored, "failed", failed, "error", err)
	}

	rows := make([]*classification.Current, 0, len(batch.Results))
	for _, res := range batch.Results {
		rows = append(rows, classification.FromResult(res))
	}
	if err := s.projection.Upsert(ctx, rows); err != nil {
		batch.ProjectionWarning = true
		batch.warn("projection: " + err.Error())
		s.log.Warnw("Failed to update current classifications", "count", len(rows), "error", err)
	}

	if err := s.events.PublishClassifications(ctx, batch.Results, batch.AuditFailures); err != nil {
		s.log.Warnw("Failed to publish classification event", "error", err)
	}

	metrics.RecordClassificationBatch(time.Since(started))
	return batch, nil
}

// currentLabels reads the projection for previous labels. A read failure is
// a warning; previous labels are then left empty.
func (s *Service) currentLabels(ctx context.Context, records []activity.Record, batch *BatchResult) map[int64]*classification.Label {
	out := make(map[int64]*classification.Label, len(records))

	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}

	current, err := s.projection.GetCurrent(ctx, ids)
	if err != nil {
		batch.ProjectionWarning = true
		batch.warn("projection: " + err.Error())
		s.log.Warnw("Failed to read current classifications", "error", err)
		return out
	}

	for id, row := range current {
		label := row.Label
		out[id] = &label
	}
	return out
}

func (s *Service) auditEntry(r activity.Record, res classification.Result, previous *classification.Label) *audit.Entry {
	confidence := res.Confidence
	return &audit.Entry{
		RecordID:      r.ID,
		PreviousLabel: previous,
		NewLabel:      res.Label,
		Source:        audit.SourceFor(res.Method),
		Confidence:    &confidence,
		Method:        res.Method,
		ModelID:       res.ModelID,
		ChangedBy:     changedBySystem,
		Reason:        res.FallbackReason,
		FeaturesUsed:  finite(activity.Extract(r).AsMap()),
	}
}

// finite drops NaN and infinite values, which JSON cannot carry
func finite(features map[string]float64) map[string]float64 {
	for k, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			delete(features, k)
		}
	}
	return features
}
