// Package log is a thin facade over zap shared by every package of the module.
// Until Init is called all output is discarded.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// Init replaces the package logger. level is one of debug, info, warn, error.
// development selects the human readable console encoder.
func Init(level string, development bool) error {

	var cfg zap.Config

	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)

	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build(zap.AddCallerSkip(1))

	if err != nil {
		return err
	}

	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// Set installs an existing zap logger, mostly useful in tests.
func Set(l *zap.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, fields ...zap.Field) {
	get().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	get().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	get().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	get().Error(msg, fields...)
}

// With returns a child logger carrying the given fields.
func With(fields ...zap.Field) *zap.Logger {
	return get().With(fields...)
}

// Sync flushes buffered entries.
func Sync() {
	_ = get().Sync()
}
