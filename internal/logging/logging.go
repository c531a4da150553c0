// Package logging provides the fluent structured logger used across the service.
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface injected into every component
type Logger interface {
	WithContext(ctx context.Context) Logger
	WithFields(fields map[string]any) Logger
	WithError(err error) Logger
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

type zapLogger struct {
	base *zap.Logger
}

// New creates a Logger backed by zap. When pretty is true, output is
// human-readable console encoding instead of JSON.
func New(appName, level string, pretty bool) (Logger, error) {
	cfg := zap.NewProductionConfig()
	if pretty {
		cfg = zap.NewDevelopmentConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &zapLogger{base: base.With(zap.String("app", appName))}, nil
}

// NewNop returns a no-op Logger for tests
func NewNop() Logger {
	return &zapLogger{base: zap.NewNop()}
}

// WithContext attaches the otel trace and span ids from ctx, if any
func (l *zapLogger) WithContext(ctx context.Context) Logger {
	span := trace.SpanContextFromContext(ctx)
	if !span.IsValid() {
		return l
	}
	return &zapLogger{base: l.base.With(
		zap.String("trace_id", span.TraceID().String()),
		zap.String("span_id", span.SpanID().String()),
	)}
}

func (l *zapLogger) WithFields(fields map[string]any) Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return &zapLogger{base: l.base.With(zf...)}
}

func (l *zapLogger) WithError(err error) Logger {
	return &zapLogger{base: l.base.With(zap.Error(err))}
}

func (l *zapLogger) Debug(msg string) { l.base.Debug(msg) }
func (l *zapLogger) Info(msg string)  { l.base.Info(msg) }
func (l *zapLogger) Warn(msg string)  { l.base.Warn(msg) }
func (l *zapLogger) Error(msg string) { l.base.Error(msg) }
