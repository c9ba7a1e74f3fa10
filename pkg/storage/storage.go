package storage

import (
	"context"

	"github.com/absmach/fedround/pkg/fl"
)

// Storage is the untyped key-value contract the in-memory backend is built
// on.
type Storage interface {
	Create(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string) (any, error)
	Update(ctx context.Context, key string, value any) error
	List(ctx context.Context, offset, limit uint64) ([]any, uint64, error)
	Delete(ctx context.Context, key string) error
}

// RunRepository persists run records. Save replaces any record with the
// same ID. List orders records by start time, oldest first, and reports the
// total number of stored records alongside the requested page.
type RunRepository interface {
	Save(ctx context.Context, r fl.RunRecord) error
	Get(ctx context.Context, id string) (fl.RunRecord, error)
	List(ctx context.Context, offset, limit uint64) ([]fl.RunRecord, uint64, error)
	Delete(ctx context.Context, id string) error
}
