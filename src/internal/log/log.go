// Package log manages the logger used by storemill.  Loggers are carried in a
// context.Context; code logs by calling the package-level functions with a
// context that has had a logger attached via AddLogger (or a child created
// with ChildLogger).
package log

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

var (
	baseOnce   sync.Once
	baseLogger *zap.Logger
)

// base returns the process-wide root logger, building it on first use.
func base() *zap.Logger {
	baseOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Sampling = nil
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		baseLogger = l
	})
	return baseLogger
}

// SetBase replaces the process-wide root logger.  It is intended for tests and
// for main functions that build a customized logger.
func SetBase(l *zap.Logger) {
	baseOnce.Do(func() {})
	baseLogger = l
}

// AddLogger attaches the root logger to the provided context.
func AddLogger(ctx context.Context) context.Context {
	return withLogger(ctx, base())
}

// AttachLogger attaches a specific logger to the provided context, in place of
// the root logger.  Tests use this to route logs to the test output.
func AttachLogger(ctx context.Context, l *zap.Logger) context.Context {
	return withLogger(ctx, l)
}

func withLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func extract(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	// Calling a log function on a context without a logger is a bug, but not
	// one worth crashing over.
	return base()
}

// LogOption customizes a child logger.
type LogOption func(*zap.Logger) *zap.Logger

// WithFields adds fields that appear on every log line produced by the child.
func WithFields(fields ...zap.Field) LogOption {
	return func(l *zap.Logger) *zap.Logger {
		return l.With(fields...)
	}
}

// WithOptions applies additional zap options to the child logger.
func WithOptions(opts ...zap.Option) LogOption {
	return func(l *zap.Logger) *zap.Logger {
		return l.WithOptions(opts...)
	}
}

// ChildLogger returns a context whose logger is a named child of ctx's logger.
// The name can be empty.
func ChildLogger(ctx context.Context, name string, opts ...LogOption) context.Context {
	l := extract(ctx)
	if name != "" {
		l = l.Named(name)
	}
	for _, opt := range opts {
		l = opt(l)
	}
	return withLogger(ctx, l)
}

// Debug logs a message at debug level.
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	extract(ctx).WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

// Info logs a message at info level.
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	extract(ctx).WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

// Error logs a message at error level.
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	extract(ctx).WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}
