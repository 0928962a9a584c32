// Package logger sets up structured logging on log/slog with a JSON
// handler and a service name attached to every record.
package logger

import (
	"fmt"
	"log/slog"
	"os"
)

// Init creates the service logger and installs it as the slog default
// so package-level slog calls share the same handler.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	log := slog.New(handler).With(
		slog.String("service", service),
	)
	slog.SetDefault(log)
	return log
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
