// Package proxy provides a local stand-in for objects living on the host side
// of the boundary. Attribute access builds child proxies lazily and calls are
// forwarded as single boundary round trips.
package proxy

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gristlabs/gristbridge/convert"
	"github.com/gristlabs/gristbridge/domain/errors"
	"github.com/gristlabs/gristbridge/domain/ports"
)

// TableAccessor is the method whose results are remote objects rather than
// values. They are always wrapped in a new Proxy.
const TableAccessor = "getTable"

// Proxy wraps one remote reference plus the attribute name that produced it.
type Proxy struct {
	ref    ports.Reference
	conv   *convert.Converter
	logger *slog.Logger
	name   string
	path   []string
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the logger for boundary call tracing. Child proxies
// inherit it.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// New creates a Proxy for ref. name is the last attribute segment, empty for a root.
func New(ref ports.Reference, name string, conv *convert.Converter, opts ...Option) *Proxy {
	p := &Proxy{ref: ref, name: name, conv: conv, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if name != "" {
		p.path = []string{name}
	}
	return p
}

// Name returns the last attribute segment.
func (p *Proxy) Name() string {
	return p.name
}

// Path returns the attribute chain from the root that produced this proxy.
func (p *Proxy) Path() []string {
	out := make([]string, len(p.path))
	copy(out, p.path)
	return out
}

// Ref returns the underlying remote reference.
func (p *Proxy) Ref() ports.Reference {
	return p.ref
}

// Get returns a proxy for the named attribute. Nothing is cached: every call
// resolves a fresh, equivalent proxy.
func (p *Proxy) Get(name string) *Proxy {
	path := make([]string, len(p.path), len(p.path)+1)
	copy(path, p.path)
	return &Proxy{
		ref:    p.ref.Get(name),
		conv:   p.conv,
		logger: p.logger,
		name:   name,
		path:   append(path, name),
	}
}

// Call invokes the referenced method with positional arguments.
func (p *Proxy) Call(ctx context.Context, args ...any) (any, error) {
	return p.CallKw(ctx, nil, args...)
}

// CallKw invokes the referenced method with positional and keyword arguments.
//
// A single callable argument is sent as a callback reference. Any other
// combination involving a callable is rejected before the boundary is touched.
func (p *Proxy) CallKw(ctx context.Context, kwargs map[string]any, args ...any) (any, error) {
	boundaryArgs, boundaryKwargs, err := p.marshal(args, kwargs)
	if err != nil {
		return nil, err
	}

	p.logger.DebugContext(ctx, "proxy: boundary call", "path", p.target(), "args", len(boundaryArgs))

	result, err := p.ref.Call(ctx, boundaryArgs, boundaryKwargs)
	if err != nil {
		var be *errors.BoundaryError
		if stdErrors.As(err, &be) {
			return nil, err
		}
		return nil, &errors.BoundaryError{Path: p.Path(), Err: err}
	}

	return p.unmarshal(result)
}

func (p *Proxy) marshal(args []any, kwargs map[string]any) ([]any, map[string]any, error) {
	callbacks := 0
	for _, arg := range args {
		if _, ok := convert.AsCallback(arg); ok {
			callbacks++
		}
	}
	for _, v := range kwargs {
		if _, ok := convert.AsCallback(v); ok {
			callbacks++
		}
	}

	if callbacks > 0 {
		if callbacks != 1 || len(args) != 1 || len(kwargs) != 0 {
			return nil, nil, &errors.ArgumentShapeError{
				Method:    p.target(),
				Callbacks: callbacks,
				Others:    len(args) + len(kwargs) - callbacks,
			}
		}
		fn, _ := convert.AsCallback(args[0])
		ref, err := p.conv.WrapCallback(fn)
		if err != nil {
			return nil, nil, fmt.Errorf("proxy: wrapping callback for %s: %w", p.target(), err)
		}
		return []any{ref}, nil, nil
	}

	boundaryArgs := make([]any, len(args))
	for i, arg := range args {
		v, err := p.conv.ToBoundary(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("proxy: argument %d of %s: %w", i, p.target(), err)
		}
		boundaryArgs[i] = v
	}

	var boundaryKwargs map[string]any
	if len(kwargs) > 0 {
		boundaryKwargs = make(map[string]any, len(kwargs))
		for k, v := range kwargs {
			converted, err := p.conv.ToBoundary(v)
			if err != nil {
				return nil, nil, fmt.Errorf("proxy: keyword %q of %s: %w", k, p.target(), err)
			}
			boundaryKwargs[k] = converted
		}
	}
	return boundaryArgs, boundaryKwargs, nil
}

func (p *Proxy) unmarshal(result any) (any, error) {
	if p.name == TableAccessor {
		ref, ok := result.(ports.Reference)
		if !ok {
			return nil, &errors.BoundaryError{
				Path: p.Path(),
				Err:  fmt.Errorf("expected a remote object, got %T", result),
			}
		}
		return New(ref, "", p.conv, WithLogger(p.logger)), nil
	}
	return convert.FromBoundary(result)
}

func (p *Proxy) target() string {
	if len(p.path) == 0 {
		return "<root>"
	}
	return strings.Join(p.path, ".")
}
