package tracing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/suavescribe/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per request. The span is renamed to the matched route
// once routing is done; the verified shop and webhook topic are attached when present.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("suavescribe/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		span.SetName(c.Request.Method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", c.Writer.Status()),
		}
		if id := obscontext.RequestIDFromContext(c.Request.Context()); id != "" {
			attrs = append(attrs, attribute.String("request_id", id))
		}
		if shop := c.GetString("shop"); shop != "" {
			attrs = append(attrs, attribute.String("shopify.shop", shop))
		}
		if topic := c.Param("topic"); topic != "" {
			attrs = append(attrs, attribute.String("shopify.webhook.topic", topic))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if c.Writer.Status() < http.StatusInternalServerError {
			return
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			span.RecordError(SafeError(lastErr.Err))
		}
		span.SetStatus(codes.Error, http.StatusText(c.Writer.Status()))
	}
}
