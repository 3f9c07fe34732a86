// Package logger provides structured logging using zerolog.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is attached to every JSON log line.
const ServiceName = "billit-api"

// Log is the global logger instance.
var Log zerolog.Logger

func init() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	Log = newConsole(os.Stdout)
}

func newConsole(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Caller().
		Logger()
}

func newJSON(w io.Writer) zerolog.Logger {
	return zerolog.New(w).
		With().
		Timestamp().
		Str("service", ServiceName).
		Logger()
}

// SetLevel sets the global log level. Unknown or empty levels mean info.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// Configure sets the level and switches to JSON output when format is "json".
func Configure(level, format string) {
	ConfigureOutput(os.Stdout, level, format)
}

// ConfigureOutput is Configure writing to w.
func ConfigureOutput(w io.Writer, level, format string) {
	if strings.EqualFold(format, "json") {
		Log = newJSON(w)
	} else {
		Log = newConsole(w)
	}
	SetLevel(level)
}

// Ctx returns Log enriched with the trace and span ids of the active span in
// ctx, so log lines can be joined with traces.
func Ctx(ctx context.Context) *zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return &Log
	}
	l := Log.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &l
}
