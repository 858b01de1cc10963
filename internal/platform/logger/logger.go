package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON slog logger writing to stdout. Handlers and services take
// it by injection; nothing logs through package-level state.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
