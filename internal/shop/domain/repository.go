package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, shop *ShopAccount) error
	FindByShop(ctx context.Context, db *gorm.DB, shop string) (*ShopAccount, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]*ShopAccount, error)
	Delete(ctx context.Context, db *gorm.DB, shop string) (bool, error)
}
