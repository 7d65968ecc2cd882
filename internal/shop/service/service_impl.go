package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/suavescribe/internal/clock"
	"github.com/smallbiznis/suavescribe/internal/observability/logger"
	"github.com/smallbiznis/suavescribe/internal/shop/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("shop.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Install(ctx context.Context, req domain.InstallRequest) (domain.ShopAccount, error) {
	shop, err := domain.NormalizeShop(req.Shop)
	if err != nil {
		return domain.ShopAccount{}, err
	}
	token := strings.TrimSpace(req.AccessToken)
	if token == "" {
		return domain.ShopAccount{}, domain.ErrInvalidAccessToken
	}

	now := s.clock.Now()
	account := domain.ShopAccount{
		Shop:        shop,
		AccessToken: token,
		Scope:       strings.TrimSpace(req.Scope),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Upsert(ctx, s.db, &account); err != nil {
		return domain.ShopAccount{}, err
	}

	stored, err := s.repo.FindByShop(ctx, s.db, shop)
	if err != nil {
		return domain.ShopAccount{}, err
	}
	if stored == nil {
		return domain.ShopAccount{}, domain.ErrShopNotFound
	}

	logger.WithShop(s.log, shop).Info("shop installed", zap.String("scope", stored.Scope))
	return *stored, nil
}

func (s *Service) Get(ctx context.Context, shop string) (domain.ShopAccount, error) {
	normalized, err := domain.NormalizeShop(shop)
	if err != nil {
		return domain.ShopAccount{}, err
	}
	item, err := s.repo.FindByShop(ctx, s.db, normalized)
	if err != nil {
		return domain.ShopAccount{}, err
	}
	if item == nil {
		return domain.ShopAccount{}, domain.ErrShopNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context) ([]domain.ShopAccount, error) {
	items, err := s.repo.ListAll(ctx, s.db)
	if err != nil {
		return nil, err
	}
	shops := make([]domain.ShopAccount, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		shops = append(shops, *item)
	}
	return shops, nil
}

// Uninstall removes the credentials only. Contracts stay for audit and reinstall.
func (s *Service) Uninstall(ctx context.Context, shop string) error {
	normalized, err := domain.NormalizeShop(shop)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, s.db, normalized)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrShopNotFound
	}
	logger.WithShop(s.log, normalized).Info("shop uninstalled")
	return nil
}
