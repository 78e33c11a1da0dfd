// Package xlog wires structured logging for the engine. It fans a single
// slog.Logger out to a console handler and a per-run file handler via
// samber/slog-multi, following the teacher's TeeLogger idiom but built on
// log/slog instead of a bespoke io.Writer tee.
package xlog

import (
	"context"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// New returns a logger that writes to console (text) and, when file is
// non-nil, also to a JSON file handler. Pass nil file for a console-only
// logger, as cmd/ does.
func New(console io.Writer, file io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	handlers := []slog.Handler{slog.NewTextHandler(console, opts)}
	if file != nil {
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// WithRun returns a logger tagged with the workflow/run identity that
// every Engine log line carries per SPEC_FULL §10.1.
func WithRun(l *slog.Logger, workflowName string, runID int64) *slog.Logger {
	return l.With(slog.String("workflow_name", workflowName), slog.Int64("run_id", runID))
}

// WithNode further tags a run-scoped logger with node/attempt identity.
func WithNode(l *slog.Logger, nodeID string, attempt int) *slog.Logger {
	return l.With(slog.String("node_id", nodeID), slog.Int("attempt", attempt))
}

// Discard is a logger that drops everything, used by components that
// accept an optional *slog.Logger and default it when nil.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MaskingHandler wraps a slog.Handler, replacing the value of any
// attribute whose key is in sensitive with a fixed redaction marker.
// Resolved variables routinely carry secrets (tokens, passwords) sourced
// from the environment; this keeps them out of both the console and the
// on-disk run log.
type MaskingHandler struct {
	next      slog.Handler
	sensitive map[string]struct{}
}

const redacted = "***"

// NewMaskingHandler builds a MaskingHandler that redacts the named keys.
func NewMaskingHandler(next slog.Handler, sensitiveKeys []string) *MaskingHandler {
	m := make(map[string]struct{}, len(sensitiveKeys))
	for _, k := range sensitiveKeys {
		m[k] = struct{}{}
	}
	return &MaskingHandler{next: next, sensitive: m}
}

func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *MaskingHandler) Handle(ctx context.Context, r slog.Record) error {
	if len(h.sensitive) == 0 {
		return h.next.Handle(ctx, r)
	}
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		if _, ok := h.sensitive[a.Key]; ok {
			a.Value = slog.StringValue(redacted)
		}
		masked.AddAttrs(a)
		return true
	})
	return h.next.Handle(ctx, masked)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		if _, ok := h.sensitive[a.Key]; ok {
			a.Value = slog.StringValue(redacted)
		}
		masked[i] = a
	}
	return &MaskingHandler{next: h.next.WithAttrs(masked), sensitive: h.sensitive}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{next: h.next.WithGroup(name), sensitive: h.sensitive}
}

var _ slog.Handler = (*MaskingHandler)(nil)

// StdFallback is used where a *slog.Logger has not been wired (tests,
// scratch tools) so callers never need a nil check.
func StdFallback() *slog.Logger { return slog.New(slog.NewTextHandler(os.Stderr, nil)) }
