// Package guard runs listener bodies one at a time with their output captured
// into a shared slot pool.
//
// A guarded invocation holds the execution lock for its whole duration:
// resetting the pool, running the body, rendering any failure, and closing
// the capture scope. Two overlapping deliveries therefore never interleave
// their output.
package guard

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/gristlabs/gristbridge/domain/entities"
	"github.com/gristlabs/gristbridge/domain/errors"
	"github.com/gristlabs/gristbridge/output"
)

// Body is the code run inside a guarded invocation. Output written through
// the output package with the given context is captured.
type Body func(ctx context.Context) error

// Guard serializes guarded invocations over one output pool.
type Guard struct {
	pool      *output.Pool
	lock      *Lock
	logger    *slog.Logger
	propagate bool
}

// Option configures a Guard.
type Option func(*Guard)

// WithLock shares lock with other guards so that all of them run one
// invocation at a time.
func WithLock(lock *Lock) Option {
	return func(g *Guard) {
		g.lock = lock
	}
}

// WithPropagateErrors makes Run return listener failures after rendering
// them. By default failures are rendered and swallowed.
func WithPropagateErrors(enabled bool) Option {
	return func(g *Guard) {
		g.propagate = enabled
	}
}

// WithLogger sets the logger that reports listener failures.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// New creates a Guard writing into pool.
func New(pool *output.Pool, opts ...Option) *Guard {
	g := &Guard{pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	if g.lock == nil {
		g.lock = NewLock()
	}
	return g
}

// Pool returns the pool the guard writes into.
func (g *Guard) Pool() *output.Pool {
	return g.pool
}

// Run executes body as one guarded invocation named name.
//
// Failures of body, returned or panicked, are rendered into the pool. They
// are returned as *errors.ListenerError only when error propagation is
// enabled. Errors acquiring the lock or resetting the pool are always
// returned because they occur before the body runs.
func (g *Guard) Run(ctx context.Context, name string, body Body) error {
	if err := g.lock.Acquire(ctx); err != nil {
		return &errors.LockError{Listener: name, Err: err}
	}
	defer g.lock.Release()

	if err := g.pool.Reset(ctx); err != nil {
		return err
	}

	sink := output.NewSink(g.pool, name)
	defer sink.Seal()

	res := invoke(output.WithSink(ctx, sink), body)
	if res.err == nil && !res.panicked {
		return nil
	}

	var trace Trace
	lerr := &errors.ListenerError{Listener: name}
	if res.panicked {
		trace = panicTrace(res.panicValue, res.pcs)
		lerr.Panic = res.panicValue
		if err, ok := res.panicValue.(error); ok {
			lerr.Err = err
		}
	} else {
		trace = errorTrace(res.err)
		lerr.Err = res.err
	}
	lerr.Trace = trace.Render()

	g.logger.WarnContext(ctx, "guard: listener failed",
		"listener", name, "outputs", g.pool.Written(), "error", lerr.Error())

	// Failures are shown even if the body's own output was the last thing
	// written; the sink is still open here.
	if err := sink.Write(ctx, lerr.Trace, entities.DisplayOptions{Raw: true}); err != nil {
		g.logger.ErrorContext(ctx, "guard: rendering failure", "listener", name, "error", err)
	}

	if g.propagate {
		return lerr
	}
	return nil
}

type result struct {
	err        error
	panicValue any
	pcs        []uintptr
	panicked   bool
}

// invoke runs body, recovering panics together with the stack at the point
// of the panic. It must not reference the trace filtering helpers, which
// locate this function by name.
func invoke(ctx context.Context, body Body) (res result) {
	defer func() {
		if r := recover(); r != nil {
			pcs := make([]uintptr, maxFrames)
			n := runtime.Callers(0, pcs)
			res.pcs = pcs[:n]
			res.panicked = true
			res.panicValue = r
		}
	}()
	res.err = body(ctx)
	return res
}
