package telemetry

import (
	"context"

	"go.uber.org/zap"
)

// zapLogger adapts *zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	l *zap.SugaredLogger
}

// NewZapLogger builds a Logger backed by the given zap.Logger. A nil logger
// panics rather than silently producing a noop logger, since callers that
// wanted a noop should use NewNoopLogger explicitly.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		panic("telemetry: nil zap logger")
	}
	return &zapLogger{l: l.Sugar()}
}

func (z *zapLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	z.l.Debugw(msg, keyvals...)
}

func (z *zapLogger) Info(_ context.Context, msg string, keyvals ...any) {
	z.l.Infow(msg, keyvals...)
}

func (z *zapLogger) Warn(_ context.Context, msg string, keyvals ...any) {
	z.l.Warnw(msg, keyvals...)
}

func (z *zapLogger) Error(_ context.Context, msg string, keyvals ...any) {
	z.l.Errorw(msg, keyvals...)
}

// NewProductionLogger builds a JSON zap logger suitable for server processes.
func NewProductionLogger() (Logger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l), nil
}

// NewDevelopmentLogger builds a console zap logger suitable for local runs.
func NewDevelopmentLogger() (Logger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l), nil
}
