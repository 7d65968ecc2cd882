package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level OpenTelemetry instruments.
type Metrics struct {
	webhooksReceived  metric.Int64Counter
	billingOutcomes   metric.Int64Counter
	contractsSynced   metric.Int64Counter
	notificationsSent metric.Int64Counter
}

// NewProvider installs the global meter provider. Disabled telemetry gets a noop provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		noopProvider := noop.NewMeterProvider()
		otel.SetMeterProvider(noopProvider)
		return noopProvider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("metrics")
	log.Info("otlp metrics export enabled",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
		zap.Duration("interval", exportInterval),
	)
	if lc != nil {
		lc.Append(fx.StopHook(func(ctx context.Context) error {
			log.Info("flushing meter provider")
			return provider.Shutdown(ctx)
		}))
	}
	return provider, nil
}

const exportInterval = 10 * time.Second

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(serviceName(cfg.ServiceName))

	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.webhooksReceived, "suavescribe_webhooks_received_total", "Shopify webhooks accepted, by topic."},
		{&m.billingOutcomes, "suavescribe_billing_outcomes_total", "Billing attempts processed, by result."},
		{&m.contractsSynced, "suavescribe_contracts_synced_total", "Contracts persisted by bulk sync."},
		{&m.notificationsSent, "suavescribe_notifications_sent_total", "Merchant and customer notices sent."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.target = counter
	}
	return m, nil
}

func serviceName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "suavescribe"
}

func (m *Metrics) add(ctx context.Context, counter metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if m == nil || counter == nil || n <= 0 {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(FilterAttributes(attrs...)...))
}

// RecordWebhook counts inbound webhooks by topic.
func (m *Metrics) RecordWebhook(ctx context.Context, shop, topic string) {
	if m == nil {
		return
	}
	m.add(ctx, m.webhooksReceived, 1, shopAttr(shop), attribute.String("topic", strings.TrimSpace(topic)))
}

// RecordBillingOutcome counts processed billing attempts.
func (m *Metrics) RecordBillingOutcome(ctx context.Context, shop, result string) {
	if m == nil {
		return
	}
	m.add(ctx, m.billingOutcomes, 1, shopAttr(shop), attribute.String("result", strings.TrimSpace(result)))
}

func (m *Metrics) RecordContractsSynced(ctx context.Context, shop string, count int) {
	if m == nil {
		return
	}
	m.add(ctx, m.contractsSynced, int64(count), shopAttr(shop))
}

func (m *Metrics) RecordNotification(ctx context.Context, kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.add(ctx, m.notificationsSent, 1, attribute.String("kind", strings.TrimSpace(kind)), attribute.String("status", status))
}

func shopAttr(shop string) attribute.KeyValue {
	return attribute.String("shop", strings.TrimSpace(shop))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch p := strings.ToLower(strings.TrimSpace(protocol)); p {
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", p)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"shop":        {},
	"topic":       {},
	"result":      {},
	"kind":        {},
	"status":      {},
	"status_code": {},
	"route":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
