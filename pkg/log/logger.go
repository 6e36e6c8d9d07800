package log

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	mu     sync.RWMutex
)

// ParseLogLevel converts a string log level to a slog.Level.
// Valid values are "debug", "info", "warn", "error".
// If an invalid value is provided, it defaults to debug.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// InitLog initializes or reinitializes the logger with the specified log level.
// It can be called multiple times to change the log level at runtime and
// overrides any previously configured logger instance.
func InitLog(logLevel string) {
	level := ParseLogLevel(logLevel)

	mu.Lock()
	defer mu.Unlock()

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger = slog.New(handler)
}

// GetLog returns the slog.Logger instance configured for the bridge.
// The logger emits JSON-formatted logs at the configured level to stdout.
// If the logger hasn't been initialized yet, it defaults to info level.
func GetLog() *slog.Logger {
	mu.RLock()
	if logger != nil {
		defer mu.RUnlock()
		return logger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if logger == nil {
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
		logger = slog.New(handler)
	}

	return logger
}

// Debug logs a message at Debug level.
func Debug(msg string, args ...any) { GetLog().Debug(msg, args...) }

// Info logs a message at Info level.
func Info(msg string, args ...any) { GetLog().Info(msg, args...) }

// Warn logs a message at Warn level.
func Warn(msg string, args ...any) { GetLog().Warn(msg, args...) }

// Error logs a message at Error level.
func Error(msg string, args ...any) { GetLog().Error(msg, args...) }

// Fatal logs a message with optional arguments and exits.
func Fatal(args ...any) {
	GetLog().Error(fmt.Sprint(args...))
	os.Exit(1)
}

// Errorf logs a formatted message at Error level and returns it as an error,
// so call sites can log and propagate a failure in one statement.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	GetLog().Error(err.Error())
	return err
}
