// Package wazero exposes a hostfuncs.HandlerRegistry to WebAssembly guests
// running in a wazero runtime.
//
// Requests and responses are JSON byte strings in guest memory, passed as
// one i64 holding the pointer in the upper 32 bits and the length in the
// lower 32 bits. Responses are written into memory obtained from the
// guest's "allocate" export.
//
// # Basic Usage
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithBundle(hostfuncs.PluginAPIBundle(api)),
//	)
//	if err != nil {
//	    return err
//	}
//
//	runtime := wazero.NewRuntime(ctx)
//	err = wazeroadapter.RegisterWithRuntime(ctx, runtime, registry)
//
// The host module (default "grist_host") exports "call", which routes a
// wireformat.CallRequestWire by its method and target, plus one function per
// registered handler name.
//
// # Custom Handlers
//
// For functions that don't fit the request/response pattern (like logging),
// use WithCustomHandler:
//
//	wazeroadapter.RegisterWithRuntime(ctx, runtime, registry,
//	    wazeroadapter.WithCustomHandler(wazeroadapter.CustomHandler{
//	        Name:        "log_message",
//	        Handler:     logMessageHandler,
//	        ParamTypes:  []api.ValueType{api.ValueTypeI64},
//	        ResultTypes: []api.ValueType{},
//	    }),
//	)
package wazero
