// Package telemetry provides the Logger/Metrics/Tracer interfaces consumed
// throughout the executor, plus Noop and Clue-backed implementations (§0
// ambient stack). The NDJSON log events required by §6 are produced by
// wrapping a Logger with ndjsonlog.Wrap.
package telemetry

import (
	"context"
	"time"
)

// Logger captures structured logging. Implementations typically delegate to
// goa.design/clue/log; the interface stays small so tests can supply
// lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter/timer helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
}

// Tracer abstracts span creation so core code stays agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}

// Span represents an in-flight tracing span.
type Span interface {
	End()
	SetError(err error)
}
