package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactMasksSecretFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(Redact(core)).With(zap.String("access_token", "shpat_123"))

	log.Info("installed",
		zap.String("shop", "acme.myshopify.com"),
		zap.String("Email", "jane@example.com"),
		zap.String("hmac", ""),
	)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, redacted, fields["access_token"])
	assert.Equal(t, redacted, fields["Email"])
	assert.Equal(t, "acme.myshopify.com", fields["shop"])
	assert.Equal(t, "", fields["hmac"])
}

func TestRedactRespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := zap.New(Redact(core))

	log.Info("dropped")
	log.Warn("kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)

	level, err = parseLevel(" debug ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	_, err = parseLevel("loud")
	assert.Error(t, err)
}
