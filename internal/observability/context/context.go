// Package context carries request-scoped correlation values used by logs and spans.
package context

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type requestIDKey struct{}
type correlationIDKey struct{}
type shopKey struct{}
type actorKey struct{}

type actor struct {
	actorType string
	actorID   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithCorrelationID tags ctx with a correlation id. An empty id generates a new ULID.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(correlationIDKey{}).(string)
	return value
}

// NewCorrelationID returns a lexically sortable identifier.
func NewCorrelationID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

func WithShop(ctx context.Context, shop string) context.Context {
	return context.WithValue(ctx, shopKey{}, strings.TrimSpace(shop))
}

func ShopFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(shopKey{}).(string)
	return value
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		actorType: strings.TrimSpace(actorType),
		actorID:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return value.actorType, value.actorID
}
