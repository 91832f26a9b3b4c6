package logger

import (
	"context"
	"log/slog"
)

// ContextExtractor pulls one attribute out of a context, such as a request ID.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// ContextHandler runs extractors on every record before passing it on.
// An extracted attribute is dropped when the record already carries its key,
// so call sites that log a request ID explicitly do not get it twice.
type ContextHandler struct {
	next       slog.Handler
	extractors []ContextExtractor
}

// NewContextHandler wraps next. Nil extractors are ignored.
func NewContextHandler(next slog.Handler, extractors ...ContextExtractor) *ContextHandler {
	h := &ContextHandler{next: next}
	for _, ex := range extractors {
		if ex != nil {
			h.extractors = append(h.extractors, ex)
		}
	}
	return h
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if len(h.extractors) > 0 && ctx != nil {
		present := make(map[string]struct{}, rec.NumAttrs())
		rec.Attrs(func(a slog.Attr) bool {
			present[a.Key] = struct{}{}
			return true
		})
		for _, ex := range h.extractors {
			attr, ok := ex(ctx)
			if !ok {
				continue
			}
			if _, dup := present[attr.Key]; dup {
				continue
			}
			present[attr.Key] = struct{}{}
			rec.AddAttrs(attr)
		}
	}
	return h.next.Handle(ctx, rec)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs), extractors: h.extractors}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name), extractors: h.extractors}
}
