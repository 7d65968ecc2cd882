package observability

import (
	"github.com/smallbiznis/suavescribe/internal/observability/logger"
	"github.com/smallbiznis/suavescribe/internal/observability/metrics"
	"github.com/smallbiznis/suavescribe/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module wires logging, tracing and metrics from the application config.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.loggerConfig,
		Config.tracingConfig,
		Config.metricsConfig,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.SchedulerWithConfig,
	),
	// the tracer provider has no consumer in the graph; force it so spans export
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

func (c Config) loggerConfig() logger.Config {
	debug := c.Debug()
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               debug,
		IncludeCaller:       true,
		IncludeStackOnError: debug,
	}
}

func (c Config) tracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) metricsConfig() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
