package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPaymentFailed(t *testing.T) {
	body, err := Render("payment_failed", map[string]string{
		"FirstName": "Ada",
		"ShopName":  "acme.myshopify.com",
		"RetryDate": "June 2, 2024",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Hi Ada,")
	assert.Contains(t, body, "June 2, 2024")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("missing", nil)
	assert.Error(t, err)
}

func TestBuildMessageHeaders(t *testing.T) {
	raw := string(buildMessage("billing@example.com", Message{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Payment failed",
		HTML:    "<p>hi</p>",
	}))
	assert.True(t, strings.HasPrefix(raw, "From: billing@example.com\r\n"))
	assert.Contains(t, raw, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, raw, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\n<p>hi</p>"))
}
