package hostfuncs

import (
	"context"
	"strings"
)

// HostContext wraps a standard context.Context with details of the boundary
// call being served. Middleware can store request-scoped values on it
// without polluting the standard context.
type HostContext interface {
	context.Context

	// Method returns the plugin API method being invoked.
	Method() string

	// Target returns the remote object path the method was called on.
	// It is empty for calls on the API root.
	Target() []string

	// RequestID returns the guest-assigned id of the call, if any.
	RequestID() string

	// SetValue stores a request-scoped value. Unlike context.WithValue,
	// this mutates the existing HostContext.
	SetValue(key, value any)

	// GetValue retrieves a request-scoped value set by SetValue.
	GetValue(key any) (value any, ok bool)
}

type hostContext struct {
	context.Context
	values    map[any]any
	method    string
	requestID string
	target    []string
}

// NewHostContext creates a new HostContext wrapping the given context.
func NewHostContext(ctx context.Context, method string, target []string, requestID string) HostContext {
	return &hostContext{
		Context:   ctx,
		method:    method,
		target:    append([]string(nil), target...),
		requestID: requestID,
		values:    make(map[any]any),
	}
}

func (c *hostContext) Method() string { return c.method }

func (c *hostContext) Target() []string {
	return append([]string(nil), c.target...)
}

func (c *hostContext) RequestID() string { return c.requestID }

func (c *hostContext) SetValue(key, value any) {
	c.values[key] = value
}

func (c *hostContext) GetValue(key any) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// HostContextFrom extracts a HostContext from a context.Context.
// If the context is already a HostContext, it is returned directly.
func HostContextFrom(ctx context.Context, method string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, method, nil, "")
}

// HandlerName maps a call on target to the registry name serving it. Calls
// on the API root use the bare method; calls on a remote object use the
// object's kind (the first path segment) as a prefix, e.g. "tables.update".
func HandlerName(target []string, method string) string {
	if len(target) == 0 {
		return method
	}
	return strings.Join([]string{target[0], method}, ".")
}
