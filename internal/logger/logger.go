package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface the rest of neoback depends on.
// keysAndValues are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// zapLogger wraps a *zap.SugaredLogger and implements Logger.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// Ensure zapLogger satisfies Logger.
var _ Logger = (*zapLogger)(nil)

// Debug logs at DebugLevel.
func (l *zapLogger) Debug(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs at InfoLevel.
func (l *zapLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs at WarnLevel.
func (l *zapLogger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs at ErrorLevel.
func (l *zapLogger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, keysAndValues...)
}

var (
	initOnce    sync.Once
	globalSugar *zap.SugaredLogger
)

// Init builds the Zap logger once and returns it wrapped in the Logger
// interface. Subsequent calls return the same logger. The level defaults to
// info and can be lowered with NEOBACK_LOG_LEVEL=debug.
func Init() (Logger, error) {
	var initErr error

	initOnce.Do(func() {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

		if lvl, err := zapcore.ParseLevel(os.Getenv("NEOBACK_LOG_LEVEL")); err == nil && os.Getenv("NEOBACK_LOG_LEVEL") != "" {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}

		zapLog, err := cfg.Build(
			zap.AddCaller(),
			zap.AddCallerSkip(1), // skip the wrapper frame
		)
		if err != nil {
			initErr = err
			return
		}

		globalSugar = zapLog.Sugar()
	})

	if initErr != nil {
		return nil, initErr
	}

	return &zapLogger{sugar: globalSugar}, nil
}

// Global returns the Logger created by Init. It falls back to a no-op logger
// when Init has not run, so library code can always log safely.
func Global() Logger {
	if globalSugar == nil {
		return &zapLogger{sugar: zap.NewNop().Sugar()}
	}
	return &zapLogger{sugar: globalSugar}
}

// Cleanup flushes any buffered log entries. Call at program exit.
func Cleanup() {
	if globalSugar != nil {
		_ = globalSugar.Sync()
	}
}
