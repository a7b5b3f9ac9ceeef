// Package logging builds the JSON slog logger shared by the license
// server and its CLI. Every line carries the service and environment so
// log aggregation can split licensed from other workloads.
package logging

import (
	"log/slog"
	"os"
)

type Config struct {
	ServiceName string // e.g. "licensed"
	Environment string
	Level       string // debug, info, warn, error; default info
}

// NewLogger returns a JSON logger at the configured level with the
// service identity attached to every record.
func NewLogger(cfg Config) *slog.Logger {
	level := new(slog.LevelVar)

	switch cfg.Level {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler).With(
		slog.String("service", cfg.ServiceName),
		slog.String("env", cfg.Environment),
	)
}
