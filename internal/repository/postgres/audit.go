package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

// Compile-time check
var _ audit.Repository = (*AuditRepository)(nil)

// AuditRepository implements audit.Repository on classification_history
type AuditRepository struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{
		db:  db,
		log: logger.Get().With("component", "audit_repository"),
	}
}

type historyRow struct {
	HistoryID     int64                 `db:"history_id"`
	RecordID      int64                 `db:"record_id"`
	PreviousLabel *string               `db:"previous_label"`
	NewLabel      string                `db:"new_label"`
	Source        audit.Source          `db:"source"`
	Confidence    *float64              `db:"confidence"`
	Method        classification.Method `db:"method"`
	ModelID       *uuid.UUID            `db:"model_id"`
	ChangedBy     string                `db:"changed_by"`
	ChangedAt     time.Time             `db:"changed_at"`
	Reason        string                `db:"reason"`
	FeaturesUsed  string                `db:"features_used"`
}

const insertHistory = `
	INSERT INTO classification_history (
		record_id, previous_label, new_label, source, confidence, method,
		model_id, changed_by, changed_at, reason, features_used
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)
	RETURNING history_id`

func historyArgs(e *audit.Entry) ([]interface{}, error) {
	features := e.FeaturesUsed
	if features == nil {
		features = map[string]float64{}
	}
	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode features")
	}

	var previous *string
	if e.PreviousLabel != nil {
		p := string(*e.PreviousLabel)
		previous = &p
	}

	return []interface{}{
		e.RecordID, previous, string(e.NewLabel), e.Source, e.Confidence, e.Method,
		e.ModelID, e.ChangedBy, e.ChangedAt, e.Reason, string(featuresJSON),
	}, nil
}

// Append inserts one entry and sets its HistoryID
func (r *AuditRepository) Append(ctx context.Context, e *audit.Entry) error {
	args, err := historyArgs(e)
	if err != nil {
		return err
	}
	if err := r.db.QueryRowxContext(ctx, insertHistory, args...).Scan(&e.HistoryID); err != nil {
		return errors.Wrap(err, "failed to append audit entry")
	}
	return nil
}

// AppendBatch inserts entries in one transaction. Each row runs under its own
// savepoint so a failing row is rolled back alone and the rest still commit.
func (r *AuditRepository) AppendBatch(ctx context.Context, entries []*audit.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stored := make([]*audit.Entry, 0, len(entries))
	for i, e := range entries {
		args, err := historyArgs(e)
		if err != nil {
			r.log.Warnw("Skipping audit entry", "index", i, "record_id", e.RecordID, "error", err)
			continue
		}

		if _, err := tx.ExecContext(ctx, "SAVEPOINT audit_row"); err != nil {
			return 0, errors.Wrap(err, "failed to create savepoint")
		}

		var id int64
		if err := tx.QueryRowxContext(ctx, insertHistory, args...).Scan(&id); err != nil {
			r.log.Warnw("Audit row rejected", "index", i, "record_id", e.RecordID, "error", err)
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT audit_row"); rbErr != nil {
				return 0, errors.Wrap(rbErr, "failed to roll back to savepoint")
			}
			continue
		}

		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT audit_row"); err != nil {
			return 0, errors.Wrap(err, "failed to release savepoint")
		}
		e.HistoryID = id
		stored = append(stored, e)
	}

	if err := tx.Commit(); err != nil {
		for _, e := range stored {
			e.HistoryID = 0
		}
		return 0, errors.Wrap(err, "failed to commit audit batch")
	}
	return len(stored), nil
}

// History returns a record's entries, newest first
func (r *AuditRepository) History(ctx context.Context, recordID int64) ([]*audit.Entry, error) {
	var rows []historyRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT history_id, record_id, previous_label, new_label, source, confidence, method,
			   model_id, changed_by, changed_at, COALESCE(reason, '') AS reason, features_used
		FROM classification_history
		WHERE record_id = $1
		ORDER BY changed_at DESC, history_id DESC`, recordID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get audit history")
	}

	entries := make([]*audit.Entry, 0, len(rows))
	for _, row := range rows {
		e := &audit.Entry{
			HistoryID:  row.HistoryID,
			RecordID:   row.RecordID,
			NewLabel:   classification.Label(row.NewLabel),
			Source:     row.Source,
			Confidence: row.Confidence,
			Method:     row.Method,
			ModelID:    row.ModelID,
			ChangedBy:  row.ChangedBy,
			ChangedAt:  row.ChangedAt.UTC(),
			Reason:     row.Reason,
		}
		if row.PreviousLabel != nil {
			prev := classification.Label(*row.PreviousLabel)
			e.PreviousLabel = &prev
		}
		if err := json.Unmarshal([]byte(row.FeaturesUsed), &e.FeaturesUsed); err != nil {
			return nil, errors.Wrap(err, "failed to decode features")
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Stats aggregates entries per source within the filter window
func (r *AuditRepository) Stats(ctx context.Context, filter audit.StatsFilter) ([]audit.SourceStats, error) {
	var stats []audit.SourceStats
	err := r.db.SelectContext(ctx, &stats, `
		SELECT source, COUNT(*) AS count, COALESCE(AVG(confidence), 0) AS avg_confidence
		FROM classification_history
		WHERE ($1::timestamptz IS NULL OR changed_at >= $1)
		  AND ($2::timestamptz IS NULL OR changed_at <= $2)
		GROUP BY source
		ORDER BY source`, filter.Since, filter.Until)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get audit stats")
	}
	return stats, nil
}
