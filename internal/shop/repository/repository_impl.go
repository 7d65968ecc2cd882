package repository

import (
	"context"

	"github.com/smallbiznis/suavescribe/internal/shop/domain"
	"github.com/smallbiznis/suavescribe/pkg/db/option"
	"github.com/smallbiznis/suavescribe/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Upsert keeps created_at of an existing install and refreshes its credentials.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, shop *domain.ShopAccount) error {
	return shops(db).Upsert(ctx, shop, "access_token", "scope", "updated_at")
}

func (r *repo) FindByShop(ctx context.Context, db *gorm.DB, shop string) (*domain.ShopAccount, error) {
	return shops(db).FindOne(ctx, &domain.ShopAccount{Shop: shop})
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB) ([]*domain.ShopAccount, error) {
	return shops(db).Find(ctx, &domain.ShopAccount{}, option.WithOrder("id", false))
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, shop string) (bool, error) {
	affected, err := shops(db).Delete(ctx, shop)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func shops(db *gorm.DB) repository.Repository[domain.ShopAccount] {
	return repository.ProvideStore[domain.ShopAccount](db)
}
