package main

import (
	"github.com/smallbiznis/suavescribe/internal/billingcycle"
	"github.com/smallbiznis/suavescribe/internal/clock"
	"github.com/smallbiznis/suavescribe/internal/config"
	"github.com/smallbiznis/suavescribe/internal/contract"
	"github.com/smallbiznis/suavescribe/internal/contractsync"
	"github.com/smallbiznis/suavescribe/internal/lock"
	"github.com/smallbiznis/suavescribe/internal/migration"
	"github.com/smallbiznis/suavescribe/internal/notification"
	"github.com/smallbiznis/suavescribe/internal/observability"
	"github.com/smallbiznis/suavescribe/internal/providers"
	"github.com/smallbiznis/suavescribe/internal/ratelimit"
	"github.com/smallbiznis/suavescribe/internal/scheduler"
	"github.com/smallbiznis/suavescribe/internal/shop"
	"github.com/smallbiznis/suavescribe/internal/shopify"
	"github.com/smallbiznis/suavescribe/pkg/db"
	"go.uber.org/fx"
)

// Worker-only deployment: runs the job loop with no HTTP server.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,
		lock.Module,
		ratelimit.Module,
		providers.Module,
		notification.Module,

		// Domain services required by scheduler
		shop.Module,
		contract.Module,
		shopify.Module,
		contractsync.Module,
		billingcycle.Module,

		scheduler.Module,
	)
	app.Run()
}
