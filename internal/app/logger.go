package app

import (
	"io"
	"log/slog"

	"github.com/vk/botgraph/internal/config"
)

// newLogger builds the process logger from the validated log settings. It
// does not touch slog's default logger.
func newLogger(s config.LogSettings, outW io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug && s.Format == "json"}

	var handler slog.Handler = slog.NewTextHandler(outW, opts)
	if s.Format == "json" {
		handler = slog.NewJSONHandler(outW, opts)
	}
	return slog.New(handler).With("service", "botgraph")
}
