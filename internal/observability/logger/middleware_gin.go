package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/suavescribe/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	headerRequestID = "X-Request-Id"
	headerWebhookID = "X-Shopify-Webhook-Id"
	headerShop      = "X-Shopify-Shop-Domain"

	// ginShopKey is where the webhook guard stores the verified shop domain.
	ginShopKey = "shop"
)

type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware writes one access log line per request. Webhook deliveries reuse the
// delivery id as correlation id so retries of the same event line up.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = obscontext.WithCorrelationID(ctx, c.GetHeader(headerWebhookID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if shop := requestShop(c); shop != "" {
			fields = append(fields, zap.String("shop", shop))
		}
		if topic := strings.Trim(c.Param("topic"), "/"); topic != "" {
			fields = append(fields, zap.String("webhook_topic", topic))
		}
		if lastErr := c.Errors.Last(); lastErr != nil && cfg.ErrorClassifier != nil {
			errorType, errorCode := cfg.ErrorClassifier(lastErr.Err)
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug {
				fields = append(fields, zap.Error(lastErr.Err))
			}
		}

		log := WithContext(c.Request.Context(), zap.L())
		if ce := log.Check(requestLevel(route, status), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

// requestShop prefers the domain verified by the webhook guard over the raw header.
func requestShop(c *gin.Context) string {
	if shop := c.GetString(ginShopKey); shop != "" {
		return shop
	}
	if shop := c.Param("shop"); shop != "" {
		return shop
	}
	return strings.TrimSpace(c.GetHeader(headerShop))
}

func requestLevel(route string, status int) zapcore.Level {
	switch {
	case route == "/health" || route == "/metrics":
		return zap.DebugLevel
	case status >= http.StatusInternalServerError:
		return zap.ErrorLevel
	case status == http.StatusUnauthorized && strings.HasPrefix(route, "/webhooks"):
		// a forged or misconfigured webhook sender
		return zap.WarnLevel
	default:
		return zap.InfoLevel
	}
}
