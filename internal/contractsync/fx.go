package contractsync

import (
	"github.com/smallbiznis/suavescribe/internal/contractsync/service"
	"go.uber.org/fx"
)

var Module = fx.Module("contractsync.service",
	fx.Provide(service.NewService),
)
