package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	once   sync.Once
	logger *slog.Logger
)

// Setup initializes the global logger writing JSON to stdout.
// Unknown levels fall back to INFO. Only the first call has any effect.
func Setup(level string) {
	SetupWriter(os.Stdout, level, "json")
}

// SetupWriter initializes the global logger with an explicit sink and format.
// format is "json" (default) or "text".
func SetupWriter(w io.Writer, level, format string) {
	once.Do(func() { install(w, level, format) })
}

func install(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// ParseLevel maps a case-insensitive level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the configured logger. Before any Setup call it installs the
// INFO JSON logger on stdout, and later Setup calls have no effect.
func Get() *slog.Logger {
	once.Do(func() { install(os.Stdout, "INFO", "json") })
	return logger
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithProfile returns a logger with the executor profile field set.
func WithProfile(id string) *slog.Logger {
	return Get().With(slog.String("profile", id))
}

// WithAttempt returns a logger with the attempt_id field set.
func WithAttempt(id string) *slog.Logger {
	return Get().With(slog.String("attempt_id", id))
}
