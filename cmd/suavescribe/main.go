package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/smallbiznis/suavescribe/internal/billingcycle"
	billingcycledomain "github.com/smallbiznis/suavescribe/internal/billingcycle/domain"
	"github.com/smallbiznis/suavescribe/internal/clock"
	"github.com/smallbiznis/suavescribe/internal/config"
	"github.com/smallbiznis/suavescribe/internal/contract"
	"github.com/smallbiznis/suavescribe/internal/contractsync"
	contractsyncdomain "github.com/smallbiznis/suavescribe/internal/contractsync/domain"
	"github.com/smallbiznis/suavescribe/internal/lock"
	"github.com/smallbiznis/suavescribe/internal/migration"
	"github.com/smallbiznis/suavescribe/internal/notification"
	"github.com/smallbiznis/suavescribe/internal/observability"
	"github.com/smallbiznis/suavescribe/internal/providers"
	"github.com/smallbiznis/suavescribe/internal/ratelimit"
	"github.com/smallbiznis/suavescribe/internal/scheduler"
	"github.com/smallbiznis/suavescribe/internal/server"
	"github.com/smallbiznis/suavescribe/internal/shop"
	shopdomain "github.com/smallbiznis/suavescribe/internal/shop/domain"
	"github.com/smallbiznis/suavescribe/internal/shopify"
	"github.com/smallbiznis/suavescribe/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "suavescribe",
		Short:        "Shopify subscription contract sync and billing cycles",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// coreModules is everything below the HTTP server and the job loop.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,
		lock.Module,
		ratelimit.Module,
		providers.Module,
		notification.Module,

		shop.Module,
		contract.Module,
		shopify.Module,
		contractsync.Module,
		billingcycle.Module,
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and admin HTTP server with the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				coreModules(),
				scheduler.Module,
				server.Module,
			)
			app.Run()
			return app.Err()
		},
	}
}

func sweepCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sweep [shop]",
		Short: "Request today's due billing attempts for one shop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shopDomain, err := shopdomain.NormalizeShop(args[0])
			if err != nil {
				return err
			}
			var cycles billingcycledomain.Service
			return runOnce(cmd.Context(), timeout, fx.Populate(&cycles), func(ctx context.Context) (any, error) {
				return cycles.Sweep(ctx, shopDomain)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "abort the sweep after this long")
	return cmd
}

func syncCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync [shop]",
		Short: "Import every subscription contract of one shop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shopDomain, err := shopdomain.NormalizeShop(args[0])
			if err != nil {
				return err
			}
			var syncSvc contractsyncdomain.Service
			return runOnce(cmd.Context(), timeout, fx.Populate(&syncSvc), func(ctx context.Context) (any, error) {
				return syncSvc.SyncAll(ctx, shopDomain)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "abort the sync after this long")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				conn *gorm.DB
				cfg  config.Config
				log  *zap.Logger
			)
			app := fx.New(
				config.Module,
				observability.Module,
				db.Module,
				fx.Populate(&conn, &cfg, &log),
				fx.NopLogger,
			)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = app.Stop(context.Background()) }()

			return migration.Apply(conn, cfg.DBType, log)
		},
	}
}

// runOnce starts the core graph, runs fn and prints its result as JSON.
func runOnce(parent context.Context, timeout time.Duration, populate fx.Option, fn func(context.Context) (any, error)) error {
	app := fx.New(coreModules(), populate, fx.NopLogger)
	if err := app.Start(parent); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.Background()) }()

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	result, err := fn(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
