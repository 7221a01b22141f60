// Package registry multiplexes named guest listeners onto one host
// subscription per event.
//
// The first registration for an event subscribes a dispatch callback with
// the host. Every later change signal re-fetches the current data and runs
// each registered listener through the execution guard, one at a time.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gristlabs/gristbridge/domain/entities"
	"github.com/gristlabs/gristbridge/guard"
	"github.com/gristlabs/gristbridge/proxy"
)

// Host API methods used to fetch listener data.
const (
	methodFetchSelectedTable  = "fetchSelectedTable"
	methodFetchSelectedRecord = "fetchSelectedRecord"
	methodGetCurrentRecord    = "getCurrentRecord"
)

// Listener receives the data of one event delivery: an entities.Table for
// onRecords and an entities.Record for onRecord.
type Listener func(ctx context.Context, data any) error

// WarnFunc reports non-fatal registry conditions.
type WarnFunc func(ctx context.Context, msg string, args ...any)

type entry struct {
	name     string
	listener Listener
}

type bucket struct {
	subMu      sync.Mutex // held while subscribing
	subscribed bool
	order      []string
	entries    map[string]entry
}

// Registry owns the listener buckets of one API object.
type Registry struct {
	api       *proxy.Proxy
	guard     *guard.Guard
	warn      WarnFunc
	fetchOpts entities.FetchOptions
	seed      bool

	mu      sync.Mutex
	buckets map[string]*bucket
}

// Option configures a Registry.
type Option func(*Registry)

// WithWarnFunc replaces the default slog warning output.
func WithWarnFunc(fn WarnFunc) Option {
	return func(r *Registry) {
		r.warn = fn
	}
}

// WithSeedOnRegister controls whether Register immediately runs a newly
// registered listener against the current selection. Enabled by default.
func WithSeedOnRegister(enabled bool) Option {
	return func(r *Registry) {
		r.seed = enabled
	}
}

// WithFetchOptions sets the options passed to the host fetch methods.
func WithFetchOptions(opts entities.FetchOptions) Option {
	return func(r *Registry) {
		r.fetchOpts = opts
	}
}

// New creates a Registry dispatching calls on api through g.
func New(api *proxy.Proxy, g *guard.Guard, opts ...Option) *Registry {
	r := &Registry{
		api:   api,
		guard: g,
		warn:  slog.WarnContext,
		seed:  true,
		buckets: map[string]*bucket{
			entities.EventRecords: {entries: make(map[string]entry)},
			entities.EventRecord:  {entries: make(map[string]entry)},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds listener to the bucket of event under name and returns its
// guarded form. The host subscription for event is made on first use.
// A listener already registered under name is replaced with a warning.
func (r *Registry) Register(ctx context.Context, event, name string, listener Listener) (Listener, error) {
	if listener == nil {
		return nil, fmt.Errorf("registry: nil listener %q", name)
	}
	b, err := r.bucket(event)
	if err != nil {
		return nil, err
	}
	if err := r.subscribe(ctx, event, b); err != nil {
		return nil, err
	}

	r.mu.Lock()
	_, exists := b.entries[name]
	if !exists {
		b.order = append(b.order, name)
	}
	b.entries[name] = entry{name: name, listener: listener}
	r.mu.Unlock()

	if exists {
		r.warn(ctx, "registry: replacing listener", "event", event, "listener", name)
	}

	guarded := r.guarded(name, listener)
	if r.seed {
		if err := r.Seed(ctx, event, name); err != nil {
			return guarded, err
		}
	}
	return guarded, nil
}

// Seed runs the listener registered under name once with the current data.
// For onRecord it is a no-op while no record is selected.
func (r *Registry) Seed(ctx context.Context, event, name string) error {
	b, err := r.bucket(event)
	if err != nil {
		return err
	}
	r.mu.Lock()
	e, ok := b.entries[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("registry: no listener %q for %s", name, event)
	}

	data, ok, err := r.current(ctx, event, nil, true)
	if err != nil || !ok {
		return err
	}
	return r.guarded(e.name, e.listener)(ctx, data)
}

// Dispatch delivers one host change signal for event to every registered
// listener. payload is what the host sent with the signal; for onRecord an
// empty payload means nothing is selected and nothing runs.
//
// Fetch errors are returned. Listener failures are handled by the guard and
// only returned when it propagates them; a failing listener never stops the
// remaining ones from running.
func (r *Registry) Dispatch(ctx context.Context, event string, payload any) error {
	b, err := r.bucket(event)
	if err != nil {
		return err
	}
	entries := r.snapshot(b)
	if len(entries) == 0 {
		return nil
	}

	data, ok, err := r.current(ctx, event, payload, false)
	if err != nil || !ok {
		return err
	}

	var errs []error
	for _, e := range entries {
		if err := r.guarded(e.name, e.listener)(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of listeners registered for event.
func (r *Registry) Len(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[event]; ok {
		return len(b.entries)
	}
	return 0
}

// Subscribed reports whether the host subscription for event exists.
func (r *Registry) Subscribed(event string) bool {
	r.mu.Lock()
	b, ok := r.buckets[event]
	r.mu.Unlock()
	if !ok {
		return false
	}
	b.subMu.Lock()
	defer b.subMu.Unlock()
	return b.subscribed
}

func (r *Registry) bucket(event string) (*bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[event]
	if !ok {
		return nil, fmt.Errorf("registry: unknown event %q", event)
	}
	return b, nil
}

func (r *Registry) snapshot(b *bucket) []entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entry, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.entries[name])
	}
	return out
}

func (r *Registry) subscribe(ctx context.Context, event string, b *bucket) error {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if b.subscribed {
		return nil
	}

	dispatch := func(ctx context.Context, args []any) (any, error) {
		var payload any
		if len(args) > 0 {
			payload = args[0]
		}
		return nil, r.Dispatch(ctx, event, payload)
	}
	if _, err := r.api.Get(event).Call(ctx, dispatch); err != nil {
		return fmt.Errorf("registry: subscribing to %s: %w", event, err)
	}
	b.subscribed = true
	return nil
}

func (r *Registry) guarded(name string, listener Listener) Listener {
	return func(ctx context.Context, data any) error {
		return r.guard.Run(ctx, name, func(ctx context.Context) error {
			return listener(ctx, data)
		})
	}
}

// current fetches the data listeners of event receive. ok is false when
// there is nothing to deliver. With lookup set, the selected record is
// asked from the host instead of taken from payload.
func (r *Registry) current(ctx context.Context, event string, payload any, lookup bool) (any, bool, error) {
	switch event {
	case entities.EventRecords:
		table, err := r.fetchTable(ctx)
		if err != nil {
			return nil, false, err
		}
		return table, true, nil
	case entities.EventRecord:
		rec, err := entities.RecordFrom(payload)
		if err != nil {
			return nil, false, fmt.Errorf("registry: %s payload: %w", event, err)
		}
		if lookup {
			if rec, err = r.currentRecord(ctx); err != nil {
				return nil, false, err
			}
		}
		if rec.Empty() {
			return nil, false, nil
		}
		id, ok := rec.ID()
		if !ok {
			return nil, false, fmt.Errorf("registry: %s payload has no row id", event)
		}
		full, err := r.fetchRecord(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return full, true, nil
	default:
		return nil, false, fmt.Errorf("registry: unknown event %q", event)
	}
}

func (r *Registry) fetchTable(ctx context.Context) (entities.Table, error) {
	got, err := r.api.Get(methodFetchSelectedTable).Call(ctx, r.fetchOpts.Args()...)
	if err != nil {
		return nil, err
	}
	return entities.TableFrom(got)
}

func (r *Registry) currentRecord(ctx context.Context) (entities.Record, error) {
	got, err := r.api.Get(methodGetCurrentRecord).Call(ctx)
	if err != nil {
		return nil, err
	}
	return entities.RecordFrom(got)
}

func (r *Registry) fetchRecord(ctx context.Context, id int64) (entities.Record, error) {
	args := append([]any{id}, r.fetchOpts.Args()...)
	got, err := r.api.Get(methodFetchSelectedRecord).Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	return entities.RecordFrom(got)
}
