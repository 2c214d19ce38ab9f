// Package logging configures the process-wide structured logger. JSON to
// stdout, level via LOG_LEVEL, service metadata on every record.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tripledger/ledger-engine/internal/buildinfo"
)

// New creates a slog.Logger tagged with the service name and build
// version. out defaults to stdout when nil.
func New(serviceName string, out io.Writer) *slog.Logger {
	if out == nil {
		out = os.Stdout
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: levelFromEnv(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
				}
			}
			return a
		},
	})

	return slog.New(handler).With(
		slog.String("service", serviceName),
		slog.String("version", buildinfo.Version),
	)
}

func levelFromEnv() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
