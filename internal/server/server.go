package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingcycledomain "github.com/smallbiznis/suavescribe/internal/billingcycle/domain"
	"github.com/smallbiznis/suavescribe/internal/config"
	contractdomain "github.com/smallbiznis/suavescribe/internal/contract/domain"
	contractsyncdomain "github.com/smallbiznis/suavescribe/internal/contractsync/domain"
	"github.com/smallbiznis/suavescribe/internal/observability"
	obsmiddleware "github.com/smallbiznis/suavescribe/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/suavescribe/internal/observability/metrics"
	obstracing "github.com/smallbiznis/suavescribe/internal/observability/tracing"
	shopdomain "github.com/smallbiznis/suavescribe/internal/shop/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.Engine(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.String("addr", cfg.HTTPAddr), zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTPShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	shopSvc     shopdomain.Service
	contractSvc contractdomain.Service
	syncSvc     contractsyncdomain.Service
	cycleSvc    billingcycledomain.Service
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	ShopSvc     shopdomain.Service
	ContractSvc contractdomain.Service
	SyncSvc     contractsyncdomain.Service
	CycleSvc    billingcycledomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		shopSvc:     p.ShopSvc,
		contractSvc: p.ContractSvc,
		syncSvc:     p.SyncSvc,
		cycleSvc:    p.CycleSvc,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerWebhookRoutes()
	svc.registerInternalRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	// topics arrive as "subscription_contracts/create" or "subscription_contracts-create"
	s.engine.POST("/webhooks/*topic", s.ShopifyWebhookRequired(), s.HandleWebhook)
}

func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal", s.AdminTokenRequired())

	internal.GET("/shops", s.ListShops)
	internal.POST("/shops", s.InstallShop)
	internal.DELETE("/shops/:shop", s.UninstallShop)

	internal.POST("/shops/:shop/sync", s.StartSync)
	internal.GET("/shops/:shop/sync", s.GetSyncStatus)

	internal.GET("/shops/:shop/contracts", s.ListContracts)
	internal.GET("/shops/:shop/contracts/:id", s.GetContract)
	internal.POST("/shops/:shop/sweep", s.RunSweep)
}
