package telemetry

import (
	"context"
	"time"
)

// EventKind enumerates the §6 "Structured log events" required kinds. Each
// entry is emitted as one NDJSON line: {ts, rid, evt, ...}.
type EventKind string

const (
	EvtRequestStart     EventKind = "request.start"
	EvtModelCall        EventKind = "model.call"
	EvtModelResult      EventKind = "model.result"
	EvtToolRound        EventKind = "tool.round"
	EvtToolExec         EventKind = "tool.exec"
	EvtPlanCreated      EventKind = "plan.created"
	EvtPlanSkipped      EventKind = "plan.skipped"
	EvtPlanStep         EventKind = "plan.step"
	EvtPlanReplan       EventKind = "plan.replan"
	EvtPlanContinuation EventKind = "plan.continuation"
	EvtCompression      EventKind = "compression"
	EvtCallbackEntry    EventKind = "callback.entry"
	EvtMemoryRecord     EventKind = "memory.record"
	EvtRequestEnd       EventKind = "request.end"
	EvtRequestError     EventKind = "request.error"
)

// RequestLogger emits NDJSON log events (§6) keyed by request id, on top of
// a plain Logger. Every call produces one JSON line via the underlying
// Logger.Info (clue's default JSON formatter renders one object per call).
type RequestLogger struct {
	base      Logger
	requestID string
}

// NewRequestLogger binds a Logger to a single request id for the lifetime of
// that request.
func NewRequestLogger(base Logger, requestID string) *RequestLogger {
	if base == nil {
		base = NoopLogger{}
	}
	return &RequestLogger{base: base, requestID: requestID}
}

// Event emits a single NDJSON-shaped log line: {ts, rid, evt, ...fields}.
func (l *RequestLogger) Event(ctx context.Context, evt EventKind, keyvals ...any) {
	fields := make([]any, 0, len(keyvals)+6)
	fields = append(fields, "ts", time.Now().UTC().Format(time.RFC3339Nano), "rid", l.requestID, "evt", string(evt))
	fields = append(fields, keyvals...)
	l.base.Info(ctx, string(evt), fields...)
}

// Error emits an error-level NDJSON event.
func (l *RequestLogger) Error(ctx context.Context, evt EventKind, err error, keyvals ...any) {
	fields := make([]any, 0, len(keyvals)+8)
	fields = append(fields, "ts", time.Now().UTC().Format(time.RFC3339Nano), "rid", l.requestID, "evt", string(evt))
	if err != nil {
		fields = append(fields, "err", err.Error())
	}
	fields = append(fields, keyvals...)
	l.base.Error(ctx, string(evt), fields...)
}
