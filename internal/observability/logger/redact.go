package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redacted = "[redacted]"

// secretKeys are field names whose values never reach the log output.
var secretKeys = map[string]struct{}{
	"access_token":   {},
	"authorization":  {},
	"hmac":           {},
	"webhook_hmac":   {},
	"admin_token":    {},
	"password":       {},
	"email":          {},
	"customer_email": {},
}

// Redact wraps core so string fields with secret names are masked.
func Redact(core zapcore.Core) zapcore.Core {
	return &redactCore{Core: core}
}

type redactCore struct {
	zapcore.Core
}

func (c *redactCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactCore{Core: c.Core.With(redactFields(fields))}
}

func (c *redactCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c *redactCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(entry, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if !isSecret(f) {
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, len(fields))
			copy(out, fields)
		}
		out[i] = zap.String(f.Key, redacted)
	}
	if out == nil {
		return fields
	}
	return out
}

func isSecret(f zapcore.Field) bool {
	if f.Type != zapcore.StringType || f.String == "" {
		return false
	}
	_, ok := secretKeys[strings.ToLower(f.Key)]
	return ok
}
