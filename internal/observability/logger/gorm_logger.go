package logger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures the GORM zap logger.
type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
}

// DefaultGormLoggerConfig returns production-safe defaults.
func DefaultGormLoggerConfig(debug bool) GormLoggerConfig {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return GormLoggerConfig{
		Level:         level,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// GormLogger routes GORM diagnostics through zap. Record-not-found is never an error:
// store lookups treat absence as a normal outcome.
type GormLogger struct {
	base          *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func NewGormLogger(base *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &GormLogger{
		base:          base.Named("gorm"),
		level:         cfg.Level,
		slowThreshold: cfg.SlowThreshold,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) emit(ctx context.Context, threshold gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.level < threshold {
		return
	}
	if ce := WithContext(ctx, l.base).Check(level, msg); ce != nil {
		ce.Write(zap.Any("data", data))
	}
}

// Trace logs failed queries at error, slow ones at warn and the rest at debug.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	level, ok := l.queryLevel(elapsed, err)
	if !ok {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("operation", operationFromSQL(sql)),
		zap.String("table", tableFromSQL(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if level != zapcore.WarnLevel {
		fields = append(fields, zap.String("sql", strings.TrimSpace(sql)))
	}
	if level == zapcore.ErrorLevel {
		fields = append(fields, zap.Error(err))
	}
	if ce := WithContext(ctx, l.base).Check(level, "gorm.query"); ce != nil {
		ce.Write(fields...)
	}
}

func (l *GormLogger) queryLevel(elapsed time.Duration, err error) (zapcore.Level, bool) {
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	switch {
	case l.level <= gormlogger.Silent:
		return 0, false
	case failed && l.level >= gormlogger.Error:
		return zapcore.ErrorLevel, true
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		return zapcore.WarnLevel, true
	case l.level >= gormlogger.Info:
		return zapcore.DebugLevel, true
	}
	return 0, false
}

// ParamsFilter drops bound values; access tokens and customer emails pass through queries.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return token
		}
	}
	return "UNKNOWN"
}

var tablePattern = regexp.MustCompile(`(?i)\b(?:from|into|update)\s+"?([a-z_][a-z0-9_]*)"?`)

func tableFromSQL(sql string) string {
	match := tablePattern.FindStringSubmatch(sql)
	if len(match) < 2 {
		return "unknown"
	}
	return strings.ToLower(match[1])
}

var _ gormlogger.Interface = (*GormLogger)(nil)
