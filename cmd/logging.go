package cmd

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging(w io.Writer) {
	handler, lvl, unknown := newLogHandler(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), w)
	slog.SetDefault(slog.New(handler))
	if unknown {
		slog.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	slog.Debug("logger initialized", slog.String("level", lvl.String()))
}

func newLogHandler(level, format string, w io.Writer) (slog.Handler, slog.Level, bool) {
	lvl := slog.LevelInfo
	unknown := false
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		unknown = true
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts), lvl, unknown
	}
	return slog.NewTextHandler(w, opts), lvl, unknown
}
