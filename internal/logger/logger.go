// Package logger configures the global slog logger for budgetml.
package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/budgetml/budgetml/internal/constants"
)

// Initialize sets up the global slog logger based on the environment.
// The CLI environment gets a colorized human-readable handler;
// production logs JSON to stderr.
func Initialize(env constants.Environment, level slog.Level) *slog.Logger {
	var handler slog.Handler

	if env == constants.Production {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    os.Getenv("NO_COLOR") != "",
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("logger initialized", "env", env, "level", level)

	return logger
}
