package repository

import (
	"context"

	"github.com/smallbiznis/suavescribe/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic gorm store for tables keyed by a single string column.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, where *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, where *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	// Upsert inserts resource or, on a key conflict, overwrites only the listed columns.
	Upsert(ctx context.Context, resource *T, update ...string) error
	Delete(ctx context.Context, key string) (int64, error)
	Count(ctx context.Context, where *T) (int64, error)
}
