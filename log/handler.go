// Package log provides an slog.Handler that forwards guest log records to
// the host's logMessage method.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/gristlabs/gristbridge/wireformat"
)

// Forwarder delivers one serialized record to the host.
type Forwarder func(ctx context.Context, msg wireformat.LogMessageWire) error

// Handler implements slog.Handler by serializing records into
// LogMessageWire and passing them to a Forwarder. Without a forwarder, or
// when forwarding fails, records are written as one text line.
type Handler struct {
	opts   handlerConfig
	attrs  []slog.Attr
	groups []string
}

// HandlerOption configures the Handler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	forward   Forwarder
	fallback  io.Writer
	level     slog.Leveler
	addSource bool
}

// defaultHandlerConfig returns the default configuration.
func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		level:    slog.LevelInfo,
		fallback: os.Stderr,
	}
}

// WithLevel sets the minimum log level to report.
// Records below this level are dropped on the guest side.
func WithLevel(level slog.Leveler) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file/line).
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithForwarder sets where serialized records are sent.
func WithForwarder(fn Forwarder) HandlerOption {
	return func(c *handlerConfig) {
		c.forward = fn
	}
}

// WithFallback sets the writer used when records cannot be forwarded.
func WithFallback(w io.Writer) HandlerOption {
	return func(c *handlerConfig) {
		c.fallback = w
	}
}

// NewHandler creates a new Handler with the given options.
func NewHandler(opts ...HandlerOption) *Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Handler{opts: cfg}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level.Level()
}

// WithAttrs returns a Handler that includes the given attributes.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, h.qualify(a))
	}
	return &clone
}

// WithGroup returns a Handler that qualifies later attribute keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clone(h.groups), name)
	return &clone
}

// Handle serializes record and forwards it.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	msg := h.toLogMessage(ctx, record)

	// Forwarding itself may log; those records must not be forwarded again.
	if h.opts.forward != nil && ctx.Value(forwardingKey{}) == nil {
		err := h.opts.forward(context.WithValue(ctx, forwardingKey{}, true), msg)
		if err == nil {
			return nil
		}
		msg.Attrs = append(msg.Attrs, wireformat.LogAttrWire{Key: "forward_error", Type: "error", Value: err.Error()})
	}
	return h.writeText(msg)
}

type forwardingKey struct{}

func (h *Handler) qualify(a slog.Attr) slog.Attr {
	if len(h.groups) == 0 {
		return a
	}
	a.Key = strings.Join(append(slices.Clone(h.groups), a.Key), ".")
	return a
}

func (h *Handler) writeText(msg wireformat.LogMessageWire) error {
	if h.opts.fallback == nil {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %q", msg.Timestamp.Format(time.RFC3339), msg.Level, msg.Message)
	for _, a := range msg.Attrs {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value)
	}
	b.WriteString("\n")
	_, err := io.WriteString(h.opts.fallback, b.String())
	return err
}
