package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewGormLogger(zap.New(core), DefaultGormLoggerConfig(false))
	ctx := context.Background()
	query := func() (string, int64) {
		return `UPDATE "subscription_contracts" SET "status"='ACTIVE'`, 1
	}

	log.Trace(ctx, time.Now(), query, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	log.Trace(ctx, time.Now(), query, errors.New("deadlock"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "UPDATE", entry.ContextMap()["operation"])
	assert.Equal(t, "subscription_contracts", entry.ContextMap()["table"])

	log.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	require.Equal(t, 2, logs.Len())
	slow := logs.All()[1]
	assert.Equal(t, zapcore.WarnLevel, slow.Level)
	assert.NotContains(t, slow.ContextMap(), "sql")
}

func TestGormLoggerSilent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewGormLogger(zap.New(core), DefaultGormLoggerConfig(true)).LogMode(gormlogger.Silent)

	log.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, errors.New("boom"))
	log.Error(context.Background(), "ignored")
	assert.Equal(t, 0, logs.Len())
}
