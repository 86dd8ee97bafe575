// Package utils holds small cross-cutting helpers shared by every package
// in this module: structured logging and generic pointer helpers.
package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SimpleLogger is the logging surface every collaborator depends on
// instead of a concrete *zap.Logger, so tests can swap in a no-op.
type SimpleLogger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a SimpleLogger backed by a production zap logger at
// the given level ("debug", "info", "warn", "error").
func NewZapLogger(level string) (SimpleLogger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &zapLogger{sugar: logger.Sugar()}, nil
}

func (l *zapLogger) Debugw(msg string, keysAndValues ...any) { l.sugar.Debugw(msg, keysAndValues...) }
func (l *zapLogger) Infow(msg string, keysAndValues ...any)  { l.sugar.Infow(msg, keysAndValues...) }
func (l *zapLogger) Warnw(msg string, keysAndValues ...any)  { l.sugar.Warnw(msg, keysAndValues...) }
func (l *zapLogger) Errorw(msg string, keysAndValues ...any) { l.sugar.Errorw(msg, keysAndValues...) }

// NewNopZapLogger returns a SimpleLogger that discards everything, for tests.
func NewNopZapLogger() SimpleLogger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}
