package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pacelab/internal/domain/classification"
	"pacelab/pkg/errors"
)

// Compile-time check
var _ classification.Repository = (*ClassificationRepository)(nil)

// ClassificationRepository stores the latest label per record
type ClassificationRepository struct {
	db *sqlx.DB
}

// NewClassificationRepository creates a new projection repository
func NewClassificationRepository(db *sqlx.DB) *ClassificationRepository {
	return &ClassificationRepository{db: db}
}

// GetCurrent returns the stored rows for the given records
func (r *ClassificationRepository) GetCurrent(ctx context.Context, recordIDs []int64) (map[int64]*classification.Current, error) {
	out := make(map[int64]*classification.Current, len(recordIDs))
	if len(recordIDs) == 0 {
		return out, nil
	}

	var rows []*classification.Current
	err := r.db.SelectContext(ctx, &rows, `
		SELECT record_id, label, confidence, method, model_id, model_version, classified_at, change_count
		FROM activity_classifications
		WHERE record_id = ANY($1)`, pq.Array(recordIDs))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get current classifications")
	}

	for _, row := range rows {
		out[row.RecordID] = row
	}
	return out, nil
}

// Upsert writes rows in one transaction. change_count grows only when the label changes.
func (r *ClassificationRepository) Upsert(ctx context.Context, rows []*classification.Current) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO activity_classifications (
			record_id, label, confidence, method, model_id, model_version, classified_at, change_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
		ON CONFLICT (record_id) DO UPDATE SET
			label = EXCLUDED.label,
			confidence = EXCLUDED.confidence,
			method = EXCLUDED.method,
			model_id = EXCLUDED.model_id,
			model_version = EXCLUDED.model_version,
			classified_at = EXCLUDED.classified_at,
			change_count = activity_classifications.change_count +
				CASE WHEN activity_classifications.label <> EXCLUDED.label THEN 1 ELSE 0 END`

	for i, row := range rows {
		if _, err := tx.ExecContext(ctx, query,
			row.RecordID, string(row.Label), row.Confidence, string(row.Method),
			row.ModelID, row.ModelVersion, row.ClassifiedAt,
		); err != nil {
			return errors.Wrapf(err, "failed to upsert classification at index %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit classifications")
	}
	return nil
}
