package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the pipeline's structured logger. Every record carries the
// service name and pid so the api and worker streams stay distinguishable
// when an aggregator merges them.
func New(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler).With("service", service, "pid", os.Getpid())
}

func NewJSONLogger(service, level string) *slog.Logger {
	return New(os.Stdout, service, level)
}

// ParseLevel maps operator-supplied level names onto slog levels. Unknown
// names fall back to info rather than failing startup.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
