package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/suavescribe/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultService = "suavescribe"

// Config configures the zap logger.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	Debug       bool

	// Sampling keeps the first N entries per message each window, then every Mth.
	SamplingInitial     int
	SamplingThereafter  int
	SamplingWindow      time.Duration
	IncludeCaller       bool
	IncludeStackOnError bool
}

// New builds the process logger, installs it as the zap global and syncs it on stop.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Development = cfg.Debug
	zapCfg.Encoding = "json"
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		zapCfg.Encoding = "console"
	}
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	// the sampler below replaces zap's default one
	zapCfg.Sampling = nil

	log, err := zapCfg.Build(cfg.options()...)
	if err != nil {
		return nil, err
	}
	log = log.With(
		zap.String("service", firstNonEmpty(cfg.ServiceName, defaultService)),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	)
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			_ = log.Sync()
			return nil
		}})
	}
	return log, nil
}

func (cfg Config) options() []zap.Option {
	var opts []zap.Option
	if cfg.IncludeCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.IncludeStackOnError {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	window := cfg.SamplingWindow
	if window <= 0 {
		window = time.Second
	}
	initial := positiveOr(cfg.SamplingInitial, 100)
	thereafter := positiveOr(cfg.SamplingThereafter, 100)

	return append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewSamplerWithOptions(Redact(core), window, initial, thereafter)
	}))
}

func parseLevel(raw string) (zapcore.Level, error) {
	raw = firstNonEmpty(raw, "info")
	level, err := zapcore.ParseLevel(raw)
	if err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	return level, nil
}

// WithContext adds correlation, shop, actor and trace fields carried by ctx.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	fields := make([]zap.Field, 0, 8)
	fields = append(fields,
		zap.String("request_id", obscontext.RequestIDFromContext(ctx)),
		zap.String("correlation_id", obscontext.CorrelationIDFromContext(ctx)),
		zap.String("shop", obscontext.ShopFromContext(ctx)),
	)
	if actorType, actorID := obscontext.ActorFromContext(ctx); actorType != "" {
		fields = append(fields, zap.String("actor_type", actorType), zap.String("actor_id", actorID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return base.With(fields...)
}

// WithShop adds the shop domain to the logger.
func WithShop(log *zap.Logger, shop string) *zap.Logger {
	if log == nil {
		return nil
	}
	return log.With(zap.String("shop", strings.TrimSpace(shop)))
}

// WithContract adds shop and contract identifiers to the logger.
func WithContract(log *zap.Logger, shop, contractID string) *zap.Logger {
	if log == nil {
		return nil
	}
	return log.With(
		zap.String("shop", strings.TrimSpace(shop)),
		zap.String("contract_id", strings.TrimSpace(contractID)),
	)
}

func firstNonEmpty(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
