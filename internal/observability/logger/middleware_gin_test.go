package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, requestLevel("/health", http.StatusOK))
	assert.Equal(t, zap.ErrorLevel, requestLevel("/internal/shops", http.StatusBadGateway))
	assert.Equal(t, zap.WarnLevel, requestLevel("/webhooks/*topic", http.StatusUnauthorized))
	assert.Equal(t, zap.InfoLevel, requestLevel("/internal/shops", http.StatusUnauthorized))
}

func TestGinMiddlewareLogsVerifiedShop(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.POST("/webhooks/*topic", func(c *gin.Context) {
		c.Set(ginShopKey, "acme.myshopify.com")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/app/uninstalled", nil)
	req.Header.Set(headerShop, "spoofed.myshopify.com")
	req.Header.Set(headerWebhookID, "delivery-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
	entries := logs.FilterMessage("http_request").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "acme.myshopify.com", fields["shop"])
		assert.Equal(t, "app/uninstalled", fields["webhook_topic"])
		assert.Equal(t, "delivery-1", fields["correlation_id"])
	}
}
