package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"pacelab/internal/domain/activity"
	"pacelab/pkg/errors"
)

// Compile-time check
var _ activity.Repository = (*ActivityRepository)(nil)

// ActivityRepository reads the recorded activity history
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// FetchAll returns every stored activity, oldest first
func (r *ActivityRepository) FetchAll(ctx context.Context) ([]activity.Record, error) {
	var records []activity.Record
	err := r.db.SelectContext(ctx, &records, `
		SELECT id, started_at, pace, distance, duration_seconds, steps
		FROM activities
		ORDER BY started_at NULLS LAST, id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch activities")
	}
	return records, nil
}

// Insert stores records and sets their IDs
func (r *ActivityRepository) Insert(ctx context.Context, records []*activity.Record) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO activities (started_at, pace, distance, duration_seconds, steps)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	for i, rec := range records {
		if err := tx.QueryRowxContext(ctx, query,
			rec.Timestamp, rec.Pace, rec.Distance, rec.DurationSeconds, rec.Steps,
		).Scan(&rec.ID); err != nil {
			return errors.Wrapf(err, "failed to insert activity at index %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit activities")
	}
	return nil
}
