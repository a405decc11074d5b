package server

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// logLevel is shared by every logger built with NewLogger so that a config
// reload changes the level of the running process.
var logLevel = new(slog.LevelVar)

// NewLogger returns a slog.Logger writing to w in the given format
// ("json" or "text") at the level of the active configuration.
func NewLogger(w io.Writer, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level %q: want debug|info|warn|error", s)
	}
	return level, nil
}
