package shop

import (
	"github.com/smallbiznis/suavescribe/internal/shop/repository"
	"github.com/smallbiznis/suavescribe/internal/shop/service"
	"go.uber.org/fx"
)

var Module = fx.Module("shop.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
