package activity

import "context"

// Repository is the record source: the full activity history.
// Implementations return every stored record; validity filtering happens in Extract.
type Repository interface {
	FetchAll(ctx context.Context) ([]Record, error)
}
