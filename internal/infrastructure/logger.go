package infrastructure

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	defaultLogger *slog.Logger
	loggerMu      sync.RWMutex
)

// LoggingConfig describes the logger. Declared here so this package has
// no dependency on internal/config.
type LoggingConfig struct {
	Level  string
	Format string
}

// InitializeLogger builds the process-wide slog logger. The service
// uses a single logger instance; components derive children with
// logger.With.
func InitializeLogger(cfg LoggingConfig) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)

	loggerMu.Lock()
	defaultLogger = logger
	loggerMu.Unlock()
	slog.SetDefault(logger)

	return logger, nil
}

// GetLogger returns the process logger, falling back to a JSON logger
// at info level if InitializeLogger has not run yet.
func GetLogger() *slog.Logger {
	loggerMu.RLock()
	l := defaultLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return defaultLogger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
