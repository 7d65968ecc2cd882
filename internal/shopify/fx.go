package shopify

import (
	contractdomain "github.com/smallbiznis/suavescribe/internal/contract/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("shopify",
	fx.Provide(
		NewProvider,
		func(p *Provider) contractdomain.GatewayProvider { return p },
	),
)
