package log

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EndSpanFunc is a function that ends a span.
type EndSpanFunc = func(fields ...zap.Field)

const errorpType = zapcore.InlineMarshalerType + 100

// Errorp is a field that marks a span as failed if *err is non-nil when the
// span ends.  Pass a pointer to the function's named return error.
func Errorp(err *error) zap.Field {
	return zapcore.Field{
		Key:       "error",
		Type:      errorpType,
		Interface: err,
	}
}

// Span logs the start of an operation and returns a function that logs its
// end, along with the duration and any error:
//
//	end := log.Span(ctx, "publishChunk")
//	defer end(log.Errorp(&retErr))
func Span(ctx context.Context, event string, fields ...zap.Field) EndSpanFunc {
	l := extract(ctx).Named(event)
	start := time.Now()
	l.Debug("span start", fields...)
	return func(rawFields ...zap.Field) {
		fields := []zap.Field{zap.Duration("spanDuration", time.Since(start))}
		msg, level := "span finished ok", zapcore.DebugLevel
		for _, f := range rawFields {
			if f.Type == errorpType {
				if errp, ok := f.Interface.(*error); ok && *errp != nil {
					msg, level = "span failed", zapcore.ErrorLevel
					fields = append(fields, zap.Error(*errp))
				}
				continue
			}
			if _, ok := f.Interface.(error); ok {
				msg, level = "span failed", zapcore.ErrorLevel
			}
			fields = append(fields, f)
		}
		l.Log(level, msg, fields...)
	}
}
