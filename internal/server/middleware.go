package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/suavescribe/internal/observability/context"
	shopdomain "github.com/smallbiznis/suavescribe/internal/shop/domain"
)

const (
	HeaderAdminToken   = "X-Admin-Token"
	HeaderShopifyHmac  = "X-Shopify-Hmac-Sha256"
	HeaderShopifyShop  = "X-Shopify-Shop-Domain"
	HeaderShopifyTopic = "X-Shopify-Topic"

	contextShopKey = "shop"

	// webhook bodies are small JSON documents
	maxWebhookBody = 1 << 20
)

// AdminTokenRequired guards the internal routes with the static ADMIN_TOKEN. An unset token
// locks the routes entirely.
func (s *Server) AdminTokenRequired() gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(s.cfg.AdminToken))
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(HeaderAdminToken))
		if token == "" {
			token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		}
		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// ShopifyWebhookRequired checks the body signature and resolves the sending shop. The body is
// put back for the handler.
func (s *Server) ShopifyWebhookRequired() gin.HandlerFunc {
	secret := []byte(strings.TrimSpace(s.cfg.Shopify.WebhookSecret))
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		if len(secret) == 0 || !validSignature(secret, body, c.GetHeader(HeaderShopifyHmac)) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		shop, err := shopdomain.NormalizeShop(c.GetHeader(HeaderShopifyShop))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Request = c.Request.WithContext(obscontext.WithShop(c.Request.Context(), shop))
		c.Set(contextShopKey, shop)
		c.Next()
	}
}

func validSignature(secret, body []byte, header string) bool {
	given, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil || len(given) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hmac.Equal(given, mac.Sum(nil))
}
