package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var forbiddenAttributeKeys = map[attribute.Key]struct{}{
	"access_token":   {},
	"customer.email": {},
	"email":          {},
	"hmac":           {},
}

// SafeAttributes drops attributes that may carry credentials or customer PII.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, forbidden := forbiddenAttributeKeys[attr.Key]; forbidden {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError strips the message down to its first line so remote payloads never reach spans.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return errors.New(msg)
}

func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
