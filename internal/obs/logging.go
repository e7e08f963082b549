// Package obs contains observability utilities such as logging.
package obs

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global structured logger used by the service.
//
// It defaults to a text handler so packages can log before Init runs (tests, tools).
var Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Init replaces the global Logger. Production environments log JSON at info level,
// everything else logs text at debug level.
func Init(environment string) {
	Logger = New(os.Stdout, environment)
	slog.SetDefault(Logger)
}

// New builds a logger for environment writing to w
func New(w io.Writer, environment string) *slog.Logger {
	if strings.EqualFold(environment, "production") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Component returns a child of the global Logger tagged with a component name
func Component(name string) *slog.Logger {
	return Logger.With("component", name)
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
