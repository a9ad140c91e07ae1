// Package logger provides the process-wide structured logger used by the
// publisher. It wraps a zap SugaredLogger so call sites can use either the
// printf style (Infof) or the key/value style (Infow).
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// LevelDebug enables debug logging
	LevelDebug = "debug"
	// LevelInfo is the default level
	LevelInfo = "info"
	// LevelWarn only logs warnings and errors
	LevelWarn = "warn"
	// LevelError only logs errors
	LevelError = "error"
	// LevelNone disables logging entirely
	LevelNone = "none"
)

// Options configures the global logger
type Options struct {
	// Level is one of debug, info, warn, error or none
	Level string
	// File, when set, receives a copy of every log line with size-based rotation
	File string
	// MaxSizeMB is the rotation threshold for File (defaults to 50)
	MaxSizeMB int
	// MaxBackups is the number of rotated files to keep (defaults to 5)
	MaxBackups int
}

var (
	mu     sync.RWMutex
	sugar  = zap.NewNop().Sugar()
	closer func() error
)

// Initialize builds the global logger from opts. It is safe to call more than once;
// the previous logger is flushed before being replaced.
func Initialize(opts Options) error {
	l, closeFn, err := build(opts)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	_ = sugar.Sync()
	if closer != nil {
		_ = closer()
	}
	sugar = l.Sugar()
	closer = closeFn
	return nil
}

func build(opts Options) (*zap.Logger, func() error, error) {
	level := strings.ToLower(strings.TrimSpace(opts.Level))
	if level == LevelNone {
		return zap.NewNop(), nil, nil
	}
	if level == "" {
		level = LevelInfo
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	// stderr keeps stdout clean for commands that print data
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl),
	}

	var closeFn func() error
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    valueOr(opts.MaxSizeMB, 50),
			MaxBackups: valueOr(opts.MaxBackups, 5),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), lvl))
		closeFn = rotator.Close
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)), closeFn, nil
}

func valueOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// SetForTesting replaces the global logger, returning a function that restores the previous one
func SetForTesting(l *zap.Logger) func() {
	mu.Lock()
	prev := sugar
	sugar = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
	mu.Unlock()

	return func() {
		mu.Lock()
		sugar = prev
		mu.Unlock()
	}
}

// Sync flushes buffered log entries and closes the rotating file, if any
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	_ = sugar.Sync()
	if closer != nil {
		_ = closer()
		closer = nil
	}
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debug logs a message at debug level
func Debug(msg string) { get().Debug(msg) }

// Debugf logs a formatted message at debug level
func Debugf(format string, args ...any) { get().Debugf(format, args...) }

// Debugw logs a message with key/value pairs at debug level
func Debugw(msg string, kv ...any) { get().Debugw(msg, kv...) }

// Info logs a message at info level
func Info(msg string) { get().Info(msg) }

// Infof logs a formatted message at info level
func Infof(format string, args ...any) { get().Infof(format, args...) }

// Infow logs a message with key/value pairs at info level
func Infow(msg string, kv ...any) { get().Infow(msg, kv...) }

// Warn logs a message at warn level
func Warn(msg string) { get().Warn(msg) }

// Warnf logs a formatted message at warn level
func Warnf(format string, args ...any) { get().Warnf(format, args...) }

// Warnw logs a message with key/value pairs at warn level
func Warnw(msg string, kv ...any) { get().Warnw(msg, kv...) }

// Error logs a message at error level
func Error(msg string) { get().Error(msg) }

// Errorf logs a formatted message at error level
func Errorf(format string, args ...any) { get().Errorf(format, args...) }

// Errorw logs a message with key/value pairs at error level
func Errorw(msg string, kv ...any) { get().Errorw(msg, kv...) }

// Fatalf logs a formatted message and exits the process
func Fatalf(format string, args ...any) { get().Fatalf(format, args...) }
