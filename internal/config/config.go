package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewBillingPolicyHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	AdminToken  string

	HTTPShutdownTimeout time.Duration

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	Redis     RedisConfig
	Shopify   ShopifyConfig
	Email     EmailConfig
	Scheduler SchedulerConfig
	Telemetry TelemetryConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type ShopifyConfig struct {
	APIVersion    string
	WebhookSecret string
	// RequestsPerSecond caps admin API calls per shop.
	RequestsPerSecond float64
	Burst             int
}

type SchedulerConfig struct {
	// Enabled runs the job loop inside the serving process.
	Enabled     bool
	RunInterval time.Duration
	// Jobs limits which jobs run. Empty means all.
	Jobs []string
}

type TelemetryConfig struct {
	LogLevel  string
	LogFormat string
	// OtelEnabled defaults to true in production only.
	OtelEnabled      bool
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "suavescribe"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		AdminToken:        strings.TrimSpace(getenv("ADMIN_TOKEN", "")),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Shopify: ShopifyConfig{
			APIVersion:        getenv("SHOPIFY_API_VERSION", "2024-01"),
			WebhookSecret:     strings.TrimSpace(getenv("SHOPIFY_API_SECRET", "")),
			RequestsPerSecond: getenvFloat("SHOPIFY_REQUESTS_PER_SECOND", 2),
			Burst:             getenvInt("SHOPIFY_BURST", 4),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "billing@suavescribe.local"),
		},
	}
	cfg.HTTPShutdownTimeout = getenvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.Scheduler = SchedulerConfig{
		Enabled:     getenvBool("SCHEDULER_ENABLED", true),
		RunInterval: getenvDuration("SCHEDULER_RUN_INTERVAL", 5*time.Minute),
		Jobs:        getenvList("SCHEDULER_JOBS"),
	}
	cfg.Telemetry = TelemetryConfig{
		LogLevel:         strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:        strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:      getenvBool("OTEL_ENABLED", cfg.IsProduction()),
		ExporterEndpoint: strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)),
		ExporterProtocol: strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))),
		SamplingRatio:    getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}

	return cfg
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
