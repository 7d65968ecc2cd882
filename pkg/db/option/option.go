package option

import (
	"fmt"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type optionFunc func(db *gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

func WithLimit(limit int) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

// WithOrder orders by a fixed column name. column must not come from user input.
func WithOrder(column string, desc bool) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		dir := "ASC"
		if desc {
			dir = "DESC"
		}
		return db.Order(fmt.Sprintf("%s %s", column, dir))
	})
}

// WithIDAfter keeps rows whose id sorts after cursor; an empty cursor is a no-op.
func WithIDAfter(cursor string) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if cursor == "" {
			return db
		}
		return db.Where("id > ?", cursor)
	})
}
