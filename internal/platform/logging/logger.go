package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/pscheid92/chainpulse/internal/platform/correlation"
)

// Logger is the process-wide structured logger.
var Logger *slog.Logger

// InitLogger installs the default logger writing to stdout.
// level: "debug", "info", "warn", "error" (unknown values fall back to info)
// format: "json" or "text"
func InitLogger(level, format string) {
	Logger = New(os.Stdout, level, format)
	slog.SetDefault(Logger)
}

// New builds a correlation-aware logger on w.
func New(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(correlation.NewHandler(handler))
}
