package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// sink is one named output of a tee handler. The failed flag is shared by
// every handler derived through WithAttrs and WithGroup.
type sink struct {
	name    string
	handler slog.Handler
	failed  *atomic.Bool
}

// teeHandler fans records out to several sinks. A sink whose Handle fails
// is disabled, and the failure is logged once through the remaining sinks.
type teeHandler struct {
	sinks []sink
}

func newSink(name string, h slog.Handler) sink {
	return sink{name: name, handler: h, failed: new(atomic.Bool)}
}

func newTeeHandler(sinks ...sink) *teeHandler {
	return &teeHandler{sinks: sinks}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if !s.failed.Load() && s.handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, s := range h.sinks {
		if s.failed.Load() || !s.handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.handler.Handle(ctx, r.Clone()); err != nil && s.failed.CompareAndSwap(false, true) {
			h.reportFailure(ctx, s.name, err)
		}
	}
	return nil
}

func (h *teeHandler) reportFailure(ctx context.Context, name string, err error) {
	rec := slog.NewRecord(time.Now(), slog.LevelError, "log sink disabled", 0)
	rec.AddAttrs(slog.String("sink", name), slog.Any("error", err))
	for _, s := range h.sinks {
		if s.failed.Load() || !s.handler.Enabled(ctx, rec.Level) {
			continue
		}
		_ = s.handler.Handle(ctx, rec.Clone())
	}
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(sh slog.Handler) slog.Handler { return sh.WithAttrs(attrs) })
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(sh slog.Handler) slog.Handler { return sh.WithGroup(name) })
}

func (h *teeHandler) derive(fn func(slog.Handler) slog.Handler) *teeHandler {
	out := &teeHandler{sinks: make([]sink, len(h.sinks))}
	for i, s := range h.sinks {
		out.sinks[i] = sink{name: s.name, handler: fn(s.handler), failed: s.failed}
	}
	return out
}
