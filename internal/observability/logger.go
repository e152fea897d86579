package observability

import (
	"log/slog"
	"os"
)

// package-level JSON logger, stdout.
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

func Logger() *slog.Logger {
	return logger
}

// WithFields returns a logger carrying additional fields.
func WithFields(kv ...any) *slog.Logger {
	return logger.With(kv...)
}

// SetLogger replaces the package logger. Intended for consumers that
// route logs elsewhere, and for quieting tests.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}
