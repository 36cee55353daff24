package classification

import "context"

// Repository stores the current-label projection.
// Upsert increments ChangeCount only when the stored label differs from the new one.
type Repository interface {
	GetCurrent(ctx context.Context, recordIDs []int64) (map[int64]*Current, error)
	Upsert(ctx context.Context, rows []*Current) error
}
