package metrics

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("shop", "demo.myshopify.com"),
		attribute.String("contract_id", "gid://shopify/SubscriptionContract/1"),
		attribute.String("topic", "subscription_contracts/update"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "contract_id" {
			t.Fatalf("expected contract_id to be dropped")
		}
	}
}

func TestNewRegistersCountersOnNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	m.RecordWebhook(ctx, "demo.myshopify.com", "subscription_billing_attempts/success")
	m.RecordContractsSynced(ctx, "demo.myshopify.com", 0)
	m.RecordNotification(ctx, "billing_failure", errors.New("smtp down"))

	var nilMetrics *Metrics
	nilMetrics.RecordBillingOutcome(ctx, "demo.myshopify.com", "succeeded")
}
