package observability

import (
	"strings"

	"github.com/smallbiznis/suavescribe/internal/config"
)

// Config is the slice of application config the logger, tracer and meter need.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "suavescribe"
	}
	ratio := cfg.Telemetry.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             cfg.Telemetry.LogLevel,
		LogFormat:            cfg.Telemetry.LogFormat,
		OtelEnabled:          cfg.Telemetry.OtelEnabled,
		OtelExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
		OtelExporterProtocol: cfg.Telemetry.ExporterProtocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug turns on query logging and stack traces.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
