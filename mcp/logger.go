package mcp

import (
	"log"
	"os"

	"github.com/metoro-io/mcp-runtime-go/fetchmw"
)

// Logger is the pluggable logging surface Client/Server report to.
// Internal errors surface through the engine's OnError callback, so the
// default implementation stays on the standard library's log package;
// embedders swap in whatever the rest of their stack uses.
type Logger interface {
	Printf(format string, args ...interface{})
}

// stdLogger adapts *log.Logger to Logger and to fetchmw.Logger, so the
// same value can be handed to both Client/Server and fetchmw.WithLogging.
type stdLogger struct {
	*log.Logger
}

// NewStdLogger builds a Logger backed by the standard library, writing to
// stderr so it never collides with a stdio transport's framed stdout.
func NewStdLogger(prefix string) Logger {
	return &stdLogger{Logger: log.New(os.Stderr, prefix, log.LstdFlags)}
}

func (l *stdLogger) LogFetch(rec fetchmw.LogRecord) {
	if rec.Err != nil {
		l.Printf("fetch %s %s -> error: %v (%s)", rec.Method, rec.URL, rec.Err, rec.Duration)
		return
	}
	l.Printf("fetch %s %s -> %d (%s)", rec.Method, rec.URL, rec.StatusCode, rec.Duration)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...interface{}) {}

// NewNoopLogger discards everything, for tests and embedders that wire
// their own observability elsewhere.
func NewNoopLogger() Logger { return noopLogger{} }
