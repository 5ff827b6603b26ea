// Package obslog provides structured logging and request-correlation
// context helpers for the session runtime, grounded on the teacher's
// internal/observability.Logger (log/slog-based, context-correlated,
// with field redaction). It narrows that package's general-purpose
// request/user/channel correlation to the three ids this runtime's
// components actually pass around: session, run (turn), and tool call.
package obslog

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// ctxKey is a typed context key, following the teacher's own
// observability.ContextKey convention.
type ctxKey string

const (
	sessionIDKey  ctxKey = "session_id"
	runIDKey      ctxKey = "run_id"
	toolCallIDKey ctxKey = "tool_call_id"
)

// New builds a JSON-handler *slog.Logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Default returns a text-formatted logger writing to stderr, suitable for
// local/dev runs.
func Default() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// WithSessionID attaches a session id to ctx for later retrieval and log
// enrichment.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID retrieves the session id previously attached to ctx, if any.
func SessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// WithRunID attaches a run (turn) id to ctx.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID retrieves the run id previously attached to ctx, if any.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// WithToolCallID attaches a tool-call id to ctx.
func WithToolCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, toolCallIDKey, id)
}

// ToolCallID retrieves the tool-call id previously attached to ctx, if any.
func ToolCallID(ctx context.Context) string {
	v, _ := ctx.Value(toolCallIDKey).(string)
	return v
}

// FromContext returns base enriched with whatever correlation ids are
// present on ctx, mirroring the teacher's Logger.WithContext.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	var attrs []any
	if id := SessionID(ctx); id != "" {
		attrs = append(attrs, "session_id", id)
	}
	if id := RunID(ctx); id != "" {
		attrs = append(attrs, "run_id", id)
	}
	if id := ToolCallID(ctx); id != "" {
		attrs = append(attrs, "tool_call_id", id)
	}
	if len(attrs) == 0 {
		return base
	}
	return base.With(attrs...)
}
