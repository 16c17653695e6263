package logger

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// NewSlogLogger creates a standalone JSON logger, mostly for tests.
func NewSlogLogger(writer io.Writer, level LogLevel, timezone *time.Location) Logger {
	if writer == nil {
		writer = os.Stdout
	}
	if timezone == nil {
		timezone = time.UTC
	}
	l := parseLogLevel(string(level))
	return &moduleLogger{
		logger:   slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: l})),
		level:    l,
		timezone: timezone,
	}
}

// NewConsoleLogger creates a text logger on stdout for bootstrap before
// configuration has been loaded.
func NewConsoleLogger(module string, level LogLevel) Logger {
	l := parseLogLevel(string(level))
	return &moduleLogger{
		module:   module,
		logger:   slog.New(newTextHandler(os.Stdout, l, time.Local)),
		level:    l,
		timezone: time.Local,
	}
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() Logger {
	return &moduleLogger{
		logger: slog.New(slog.DiscardHandler),
		level:  slog.LevelError + 1,
	}
}
