// Package logging is the process-wide structured logger. Calls made before
// Init go to a no-op logger so packages and tests can log freely.
package logging

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the key/value logging surface used across the module.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Sync() error
}

type noopLogger struct{}

func (noopLogger) Debugw(string, ...interface{}) {}
func (noopLogger) Infow(string, ...interface{})  {}
func (noopLogger) Warnw(string, ...interface{})  {}
func (noopLogger) Errorw(string, ...interface{}) {}
func (noopLogger) Sync() error                   { return nil }

var (
	mu      sync.RWMutex
	current Logger = noopLogger{}
	sugar   *zap.SugaredLogger
	once    sync.Once
)

// ParseLevel maps a LOG_LEVEL string to a zap level. Unknown values are info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Init builds the JSON zap logger from LOG_LEVEL and redirects the standard
// library logger into it. Safe to call more than once.
func Init() *zap.SugaredLogger {
	once.Do(func() {
		cfg := zap.Config{
			Level:            zap.NewAtomicLevelAt(ParseLevel(os.Getenv("LOG_LEVEL"))),
			Encoding:         "json",
			EncoderConfig:    zap.NewProductionEncoderConfig(),
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
		}
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.CallerKey = "caller"

		logger, err := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zap.ErrorLevel))
		if err != nil {
			logger = zap.NewExample()
		}
		_ = zap.RedirectStdLog(logger)
		sugar = logger.Sugar()
		SetLogger(sugar)
	})
	return sugar
}

// SetLogger swaps the package logger. nil restores the Init logger, or the
// no-op logger when Init was never called.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	switch {
	case l != nil:
		current = l
	case sugar != nil:
		current = sugar
	default:
		current = noopLogger{}
	}
}

func get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Debugw(msg string, kv ...interface{}) { get().Debugw(msg, kv...) }
func Infow(msg string, kv ...interface{})  { get().Infow(msg, kv...) }
func Warnw(msg string, kv ...interface{})  { get().Warnw(msg, kv...) }
func Errorw(msg string, kv ...interface{}) { get().Errorw(msg, kv...) }

// Sync flushes buffered entries.
func Sync() error { return get().Sync() }

type ctxKey struct{}

// WithFields returns a context carrying kv appended to any fields already
// attached to ctx.
func WithFields(ctx context.Context, kv ...interface{}) context.Context {
	if len(kv) == 0 {
		return ctx
	}
	prev := FromContext(ctx)
	merged := make([]interface{}, 0, len(prev)+len(kv))
	merged = append(merged, prev...)
	merged = append(merged, kv...)
	return context.WithValue(ctx, ctxKey{}, merged)
}

// FromContext returns the fields attached with WithFields.
func FromContext(ctx context.Context) []interface{} {
	if ctx == nil {
		return nil
	}
	v, _ := ctx.Value(ctxKey{}).([]interface{})
	return v
}

func merge(ctx context.Context, kv []interface{}) []interface{} {
	fields := FromContext(ctx)
	if len(fields) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(fields)+len(kv))
	out = append(out, fields...)
	return append(out, kv...)
}

func DebugwCtx(ctx context.Context, msg string, kv ...interface{}) { Debugw(msg, merge(ctx, kv)...) }
func InfowCtx(ctx context.Context, msg string, kv ...interface{})  { Infow(msg, merge(ctx, kv)...) }
func WarnwCtx(ctx context.Context, msg string, kv ...interface{})  { Warnw(msg, merge(ctx, kv)...) }
func ErrorwCtx(ctx context.Context, msg string, kv ...interface{}) { Errorw(msg, merge(ctx, kv)...) }

// SessionFields are the canonical keys for a call.
func SessionFields(channelID, profile string) []interface{} {
	return []interface{}{"channel.id", channelID, "profile", profile}
}
