// Package gristbridge exposes the Grist widget plugin API to guest code
// running in a notebook kernel.
//
// An API forwards calls to the host through a ports.Transport and runs
// record listeners one at a time, capturing whatever they print or display
// into a fixed pool of output slots:
//
//	api, err := gristbridge.New(ctx, transport, surface)
//	if err != nil {
//		return err
//	}
//	_, err = api.OnRecords(ctx, "", func(ctx context.Context, t entities.Table) error {
//		return output.Print(ctx, "rows:", t.Len())
//	})
package gristbridge

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strings"

	"github.com/gristlabs/gristbridge/convert"
	"github.com/gristlabs/gristbridge/domain/entities"
	"github.com/gristlabs/gristbridge/domain/ports"
	"github.com/gristlabs/gristbridge/guard"
	"github.com/gristlabs/gristbridge/log"
	"github.com/gristlabs/gristbridge/output"
	"github.com/gristlabs/gristbridge/proxy"
	"github.com/gristlabs/gristbridge/registry"
	"github.com/gristlabs/gristbridge/wireformat"
)

// RootName is the attribute name of the host plugin API object.
const RootName = "grist"

// Host plugin API methods.
const (
	methodReady               = "ready"
	methodGetOption           = "getOption"
	methodSetOption           = "setOption"
	methodFetchSelectedTable  = "fetchSelectedTable"
	methodFetchSelectedRecord = "fetchSelectedRecord"
	methodGetCurrentRecord    = "getCurrentRecord"
	methodGetTable            = "getTable"
	methodLogMessage          = "logMessage"
)

// processLock is shared by every API that does not bring its own lock.
var processLock = guard.NewLock()

// API is the guest-visible entry point to the host plugin API.
type API struct {
	cfg      Config
	root     *proxy.Proxy
	pool     *output.Pool
	guard    *guard.Guard
	registry *registry.Registry
}

// New acquires the output slots from surface and connects to the plugin API
// object of transport.
func New(ctx context.Context, transport ports.Transport, surface ports.DisplaySurface, opts ...Option) (*API, error) {
	c := defaultAPIConfig()
	for _, opt := range opts {
		opt(&c)
	}
	if err := ValidateConfig(c.cfg); err != nil {
		return nil, err
	}

	pool, err := output.Acquire(ctx, surface, c.cfg.SlotCapacity,
		output.WithOverflowMessage(c.cfg.OverflowMessage))
	if err != nil {
		return nil, fmt.Errorf("gristbridge: acquiring output slots: %w", err)
	}

	g := guard.New(pool,
		guard.WithLock(c.lock),
		guard.WithPropagateErrors(c.cfg.PropagateListenerErrors),
		guard.WithLogger(c.logger),
	)
	root := proxy.New(transport.Root(), RootName, convert.New(transport), proxy.WithLogger(c.logger))

	warn := c.warn
	if warn == nil {
		warn = c.logger.WarnContext
	}
	reg := registry.New(root, g,
		registry.WithWarnFunc(warn),
		registry.WithSeedOnRegister(c.cfg.SeedOnRegister),
		registry.WithFetchOptions(entities.FetchOptions{KeepEncoded: c.cfg.EncodedValues}),
	)

	return &API{
		cfg:      c.cfg,
		root:     root,
		pool:     pool,
		guard:    g,
		registry: reg,
	}, nil
}

// OnRecords runs fn now with the selected table and again whenever the
// selection changes. Registering another function under the same name
// replaces the first one. An empty name is derived from fn.
//
// It must not be called from inside a running listener: seeding waits for
// the lock that listener holds.
func (a *API) OnRecords(ctx context.Context, name string, fn func(ctx context.Context, table entities.Table) error) (registry.Listener, error) {
	if fn == nil {
		return nil, fmt.Errorf("gristbridge: nil onRecords listener")
	}
	if name == "" {
		name = funcName(fn)
	}
	return a.registry.Register(ctx, entities.EventRecords, name, func(ctx context.Context, data any) error {
		table, ok := data.(entities.Table)
		if !ok {
			return fmt.Errorf("gristbridge: onRecords delivered %T", data)
		}
		return fn(ctx, table)
	})
}

// OnRecord runs fn now with the selected record, if any, and again whenever
// the cursor moves to another record.
func (a *API) OnRecord(ctx context.Context, name string, fn func(ctx context.Context, record entities.Record) error) (registry.Listener, error) {
	if fn == nil {
		return nil, fmt.Errorf("gristbridge: nil onRecord listener")
	}
	if name == "" {
		name = funcName(fn)
	}
	return a.registry.Register(ctx, entities.EventRecord, name, func(ctx context.Context, data any) error {
		record, ok := data.(entities.Record)
		if !ok {
			return fmt.Errorf("gristbridge: onRecord delivered %T", data)
		}
		return fn(ctx, record)
	})
}

// Ready tells the host the widget has loaded.
func (a *API) Ready(ctx context.Context, settings map[string]any) error {
	var args []any
	if settings != nil {
		args = append(args, settings)
	}
	_, err := a.root.Get(methodReady).Call(ctx, args...)
	return err
}

// GetOption reads a widget option. A missing option is nil.
func (a *API) GetOption(ctx context.Context, key string) (any, error) {
	return a.root.Get(methodGetOption).Call(ctx, key)
}

// SetOption stores a widget option.
func (a *API) SetOption(ctx context.Context, key string, value any) error {
	_, err := a.root.Get(methodSetOption).Call(ctx, key, value)
	return err
}

// FetchSelectedTable returns the rows of the selected table.
func (a *API) FetchSelectedTable(ctx context.Context, opts entities.FetchOptions) (entities.Table, error) {
	got, err := a.root.Get(methodFetchSelectedTable).Call(ctx, opts.Args()...)
	if err != nil {
		return nil, err
	}
	return entities.TableFrom(got)
}

// FetchSelectedRecord returns one row of the selected table.
func (a *API) FetchSelectedRecord(ctx context.Context, rowID int64, opts entities.FetchOptions) (entities.Record, error) {
	args := append([]any{rowID}, opts.Args()...)
	got, err := a.root.Get(methodFetchSelectedRecord).Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	return entities.RecordFrom(got)
}

// GetCurrentRecord returns the row under the cursor, or nil when there is none.
func (a *API) GetCurrentRecord(ctx context.Context) (entities.Record, error) {
	got, err := a.root.Get(methodGetCurrentRecord).Call(ctx)
	if err != nil {
		return nil, err
	}
	return entities.RecordFrom(got)
}

// GetTable returns a proxy for a table of the document, or for the
// selected table when tableID is empty. Its methods (create, update,
// upsert, destroy, getTableId) are reached with Get.
func (a *API) GetTable(ctx context.Context, tableID string) (*proxy.Proxy, error) {
	var args []any
	if tableID != "" {
		args = append(args, tableID)
	}
	got, err := a.root.Get(methodGetTable).Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	table, ok := got.(*proxy.Proxy)
	if !ok {
		return nil, fmt.Errorf("gristbridge: getTable returned %T", got)
	}
	return table, nil
}

// Raw returns the proxy of the plugin API object for methods without a
// dedicated wrapper.
func (a *API) Raw() *proxy.Proxy {
	return a.root
}

// Registry returns the listener registry.
func (a *API) Registry() *registry.Registry {
	return a.registry
}

// Guard returns the guard listeners run under.
func (a *API) Guard() *guard.Guard {
	return a.guard
}

// Pool returns the output slot pool.
func (a *API) Pool() *output.Pool {
	return a.pool
}

// Config returns the settings the API was created with.
func (a *API) Config() Config {
	return a.cfg
}

// Logger returns a logger whose records are sent to the host's logMessage
// method at the configured level.
func (a *API) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(log.NewHandler(
		log.WithLevel(level),
		log.WithForwarder(a.forwardLog),
	))
}

func (a *API) forwardLog(ctx context.Context, msg wireformat.LogMessageWire) error {
	_, err := a.root.Get(methodLogMessage).Call(ctx, msg)
	return err
}

// funcName returns the unqualified name of fn, such as "main.plot" or
// "main.run.func1" for a closure.
func funcName(fn any) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return fmt.Sprintf("%p", fn)
	}
	name := f.Name()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
