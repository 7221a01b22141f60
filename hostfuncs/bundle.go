package hostfuncs

import (
	"context"

	"github.com/gristlabs/gristbridge/domain/entities"
	"github.com/gristlabs/gristbridge/wireformat"
)

// Plugin API method names served by PluginAPIBundle.
const (
	MethodReady               = "ready"
	MethodGetOption           = "getOption"
	MethodSetOption           = "setOption"
	MethodFetchSelectedTable  = "fetchSelectedTable"
	MethodFetchSelectedRecord = "fetchSelectedRecord"
	MethodGetCurrentRecord    = "getCurrentRecord"
	MethodGetTable            = "getTable"
	MethodLogMessage          = "logMessage"

	// TableKind is the first path segment of table references.
	TableKind = "tables"
)

// Table operations reachable through a reference returned by getTable.
var TableActions = []string{"create", "update", "upsert", "destroy"}

// PluginAPI is the host-side state a widget talks to.
type PluginAPI interface {
	Ready(ctx context.Context, settings map[string]any) error
	GetOption(ctx context.Context, key string) (any, error)
	SetOption(ctx context.Context, key string, value any) error
	FetchSelectedTable(ctx context.Context, opts entities.FetchOptions) (entities.Table, error)
	FetchSelectedRecord(ctx context.Context, rowID int64, opts entities.FetchOptions) (entities.Record, error)
	// GetCurrentRecord returns nil when no row is selected.
	GetCurrentRecord(ctx context.Context) (entities.Record, error)
	// GetTable resolves tableID, or the selected table when empty.
	GetTable(ctx context.Context, tableID string) (string, error)
	Subscribe(ctx context.Context, event, callbackID string) error
	LogMessage(ctx context.Context, msg wireformat.LogMessageWire) error
	ApplyTableAction(ctx context.Context, tableID, action string, payload any) (any, error)
}

// HostFuncBundle is a pre-configured set of related handlers.
// Bundles allow registering multiple handlers at once.
type HostFuncBundle interface {
	// Handlers returns a map of handler names to ByteHandler functions.
	Handlers() map[string]ByteHandler
}

// staticBundle implements HostFuncBundle with a fixed set of handlers.
type staticBundle struct {
	handlers map[string]ByteHandler
}

func (b *staticBundle) Handlers() map[string]ByteHandler {
	return b.handlers
}

// PluginAPIBundle returns the handlers of the widget plugin API backed by api.
func PluginAPIBundle(api PluginAPI) HostFuncBundle {
	h := map[string]ByteHandler{
		MethodReady: NewCallHandler(func(ctx context.Context, req wireformat.CallRequestWire) (any, error) {
			settings, err := Args(req.Args).Map(0)
			if err != nil {
				return nil, err
			}
			return nil, api.Ready(ctx, settings)
		}),
		MethodGetOption: NewCallHandler(func(ctx context.Context, req wireformat.CallRequestWire) (any, error) {
			key, _, err := Args(req.Args).String(0)
			if err != nil {
				return nil, err
			}
			return api.GetOption(ctx, key)
		}),
		MethodSetOption: NewCallHandler(func(ctx context.Context, req wireformat.CallRequestWire) (any, error) {
			key, ok, err := Args(req.Args).String(0)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &ArgError{Index: 0, Reason: "option key required"}
			}
			var value any
			if len(req.Args) > 1 {
				value = req.Args[1]
			}
			return nil, api.SetOption(ctx, key, value)
		}),
		MethodFetchSelectedTable: NewCallHandler(func(ctx context.Context, req wireformat.CallRequestWire) (any, error) {
			opts, err := fetchOptions(req, 0)
			if err != nil {
				return nil, err
			}
			return api.FetchSelectedTable(ctx, opts)
		}),
		MethodFetchSelectedRecord: NewCallHandler(func(ctx context.Context, req wireformat.CallRequestWire) (any, error) {
			rowID, err := Args(req.Args).Int64(0)
			if err != nil {
				return nil, err
			}
			opts, err := fetchOptions(req, 1)
			if err != nil {
				return nil, err
			}
			return api.FetchSelectedRecord(ctx, rowID, opts)
		}),
		MethodGetCurrentRecord: NewCallHandler(func(ctx context.Context, _ wireformat.CallRequestWire) (any, error) {
			rec, err := api.GetCurrentRecord(ctx)
			if err != nil || rec == nil {
				return nil, err
			}
			return rec, nil
		}),
		MethodGetTable: NewCallHandler(func(ctx context.Context, req wireformat.CallRequestWire) (any, error) {
			tableID, _, err := Args(req.Args).String(0)
			if err != nil {
				return nil, err
			}
			resolved, err := api.GetTable(ctx, tableID)
			if err != nil {
				return nil, err
			}
			return wireformat.RemoteRefWire{Remote: []string{TableKind, resolved}}, nil
		}),
		MethodLogMessage: NewCallHandler(func(ctx context.Context, req wireformat.CallRequestWire) (any, error) {
			var msg wireformat.LogMessageWire
			if err := Args(req.Args).Into(0, &msg); err != nil {
				return nil, err
			}
			return nil, api.LogMessage(ctx, msg)
		}),
		HandlerName([]string{TableKind}, "getTableId"): NewCallHandler(func(_ context.Context, req wireformat.CallRequestWire) (any, error) {
			return tableIDOf(req)
		}),
	}

	for _, event := range []string{entities.EventRecords, entities.EventRecord} {
		h[event] = NewCallHandler(func(ctx context.Context, req wireformat.CallRequestWire) (any, error) {
			id, err := Args(req.Args).Callback(0)
			if err != nil {
				return nil, err
			}
			return nil, api.Subscribe(ctx, event, id)
		})
	}

	for _, action := range TableActions {
		h[HandlerName([]string{TableKind}, action)] = NewCallHandler(func(ctx context.Context, req wireformat.CallRequestWire) (any, error) {
			tableID, err := tableIDOf(req)
			if err != nil {
				return nil, err
			}
			var payload any
			if len(req.Args) > 0 {
				payload = req.Args[0]
			}
			return api.ApplyTableAction(ctx, tableID, action, payload)
		})
	}

	return &staticBundle{handlers: h}
}

func fetchOptions(req wireformat.CallRequestWire, i int) (entities.FetchOptions, error) {
	var opts entities.FetchOptions
	if i < len(req.Args) && req.Args[i] != nil {
		if err := Args(req.Args).Into(i, &opts); err != nil {
			return opts, err
		}
	}
	if format, ok := req.Kwargs["format"].(string); ok {
		opts.Format = format
	}
	if keep, ok := req.Kwargs["keepEncoded"].(bool); ok {
		opts.KeepEncoded = keep
	}
	return opts, nil
}

func tableIDOf(req wireformat.CallRequestWire) (string, error) {
	if len(req.Target) < 2 || req.Target[1] == "" {
		return "", &ArgError{Index: -1, Reason: "table reference without id"}
	}
	return req.Target[1], nil
}

// compositeBundle combines multiple bundles into one.
type compositeBundle struct {
	bundles []HostFuncBundle
}

func (b *compositeBundle) Handlers() map[string]ByteHandler {
	result := make(map[string]ByteHandler)
	for _, bundle := range b.bundles {
		for name, handler := range bundle.Handlers() {
			result[name] = handler
		}
	}
	return result
}

// CombineBundles merges bundles; later bundles win on name collisions.
func CombineBundles(bundles ...HostFuncBundle) HostFuncBundle {
	return &compositeBundle{bundles: bundles}
}

// WithBundle registers all handlers from a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		for name, handler := range bundle.Handlers() {
			if err := b.addHandler(name, handler); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}

// WithHandler registers a typed host function with automatic JSON handling.
// The handler will be wrapped with NewJSONHandler for JSON serialization.
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return func(b *registryBuilder) {
		handler := NewJSONHandler(fn)
		if err := b.addHandler(name, handler); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}

// WithCallHandler registers a CallFunc under name.
func WithCallHandler(name string, fn CallFunc) RegistryOption {
	return func(b *registryBuilder) {
		if err := b.addHandler(name, NewCallHandler(fn)); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}
