package dao

import (
	"context"
)

// Service is the persistence seam between the pipeline and the external
// transactional datastore. Implementations must make Save atomic per row –
// the design relies on last-writer-wins at row granularity.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}
