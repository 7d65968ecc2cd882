package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/suavescribe/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultKey = "id"

type store[T any] struct {
	db  *gorm.DB
	key string
}

// ProvideStore returns a store keyed by the id column.
func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return ProvideKeyedStore[T](db, defaultKey)
}

func ProvideKeyedStore[T any](db *gorm.DB, key string) Repository[T] {
	if key == "" {
		key = defaultKey
	}
	return &store[T]{db: db, key: key}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx, key: s.key}
}

func (s *store[T]) Find(ctx context.Context, where *T, opts ...option.QueryOption) ([]*T, error) {
	var rows []*T
	if err := s.query(ctx, where, opts).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindOne returns nil, nil when nothing matches.
func (s *store[T]) FindOne(ctx context.Context, where *T, opts ...option.QueryOption) (*T, error) {
	row := new(T)
	err := s.query(ctx, where, opts).First(row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return row, nil
}

func (s *store[T]) Create(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}

func (s *store[T]) Upsert(ctx context.Context, resource *T, update ...string) error {
	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: s.key}}, DoNothing: len(update) == 0}
	if len(update) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(update)
	}
	return s.db.WithContext(ctx).Clauses(onConflict).Create(resource).Error
}

// Delete removes the row with the given key and reports how many rows went away.
func (s *store[T]) Delete(ctx context.Context, key string) (int64, error) {
	res := s.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: s.key}, Value: key}).Delete(new(T))
	return res.RowsAffected, res.Error
}

func (s *store[T]) Count(ctx context.Context, where *T) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(new(T)).Where(where).Count(&n).Error
	return n, err
}

func (s *store[T]) query(ctx context.Context, where *T, opts []option.QueryOption) *gorm.DB {
	q := s.db.WithContext(ctx).Where(where)
	for _, opt := range opts {
		q = opt.Apply(q)
	}
	return q
}
