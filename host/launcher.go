package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/gristlabs/gristbridge/hostfuncs"
	wazeroadapter "github.com/gristlabs/gristbridge/infrastructure/wazero"
	"github.com/gristlabs/gristbridge/wireformat"
)

// Guest exports used by the launcher.
const (
	ExportAllocate     = "allocate"
	ExportInitialize   = "_initialize"
	ExportDeliverEvent = "deliver_event"
)

// LogExport is the host function guests send log records to.
const LogExport = "log_message"

// Launcher owns a wazero runtime with the plugin API host module.
type Launcher struct {
	runtime    wazero.Runtime
	registry   *hostfuncs.HandlerRegistry
	logger     *slog.Logger
	moduleName string
}

// NewLauncher creates a runtime and instantiates the host module.
func NewLauncher(ctx context.Context, opts ...Option) (*Launcher, error) {
	l := &Launcher{
		logger:     slog.Default(),
		moduleName: wazeroadapter.DefaultModuleName,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.registry == nil {
		reg, err := hostfuncs.NewRegistry()
		if err != nil {
			return nil, fmt.Errorf("failed to create default registry: %w", err)
		}
		l.registry = reg
	}

	rt := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	l.runtime = rt

	err := wazeroadapter.RegisterWithRuntime(ctx, rt, l.registry,
		wazeroadapter.WithModuleName(l.moduleName),
		wazeroadapter.WithCustomHandler(wazeroadapter.CustomHandler{
			Name:       LogExport,
			Handler:    l.logMessage,
			ParamTypes: []api.ValueType{api.ValueTypeI64},
		}),
	)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	return l, nil
}

// Close releases the runtime and every kernel loaded into it.
func (l *Launcher) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}

// Kernel is an instantiated guest module.
type Kernel struct {
	module api.Module
}

// Load instantiates a guest module and runs its _initialize export if present.
func (l *Launcher) Load(ctx context.Context, wasmBytes []byte) (*Kernel, error) {
	mod, err := l.runtime.Instantiate(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	if init := mod.ExportedFunction(ExportInitialize); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = mod.Close(ctx)
			return nil, fmt.Errorf("failed to call %s: %w", ExportInitialize, err)
		}
	}

	return &Kernel{module: mod}, nil
}

// Call invokes a guest export with input and returns the bytes it points at.
func (k *Kernel) Call(ctx context.Context, name string, input []byte) ([]byte, error) {
	packed, err := k.callRaw(ctx, name, input)
	if err != nil {
		return nil, err
	}
	return k.readPacked(packed)
}

// Deliver fires a subscribed guest callback through the deliver_event export.
func (k *Kernel) Deliver(ctx context.Context, ev wireformat.EventWire) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event for %s: %w", ev.Callback, err)
	}
	_, err = k.Call(ctx, ExportDeliverEvent, data)
	return err
}

// Close releases the guest module.
func (k *Kernel) Close(ctx context.Context) error {
	return k.module.Close(ctx)
}

func (l *Launcher) logMessage(ctx context.Context, mod api.Module, stack []uint64) {
	ptr, length := wazeroadapter.UnpackPtrLen(stack[0])
	payload, ok := wazeroadapter.ReadBytes(mod, ptr, length)
	if !ok {
		return
	}

	var msg wireformat.LogMessageWire
	if err := json.Unmarshal(payload, &msg); err != nil {
		l.logger.InfoContext(ctx, "guest log (raw)", "payload", string(payload))
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(msg.Level)); err != nil {
		level = slog.LevelInfo
	}
	attrs := make([]any, 0, 2*len(msg.Attrs)+2)
	attrs = append(attrs, "guest", wazeroadapter.GuestName(ctx, mod))
	for _, a := range msg.Attrs {
		attrs = append(attrs, a.Key, a.Value)
	}
	l.logger.Log(ctx, level, "guest log: "+msg.Message, attrs...)
}

func (k *Kernel) callRaw(ctx context.Context, name string, input []byte) (uint64, error) {
	f := k.module.ExportedFunction(name)
	if f == nil {
		return 0, fmt.Errorf("export %q not found", name)
	}

	var results []uint64
	var err error

	if len(input) == 0 {
		results, err = f.Call(ctx)
	} else {
		allocate := k.module.ExportedFunction(ExportAllocate)
		if allocate == nil {
			return 0, fmt.Errorf("guest does not export %q", ExportAllocate)
		}
		resAlloc, errAlloc := allocate.Call(ctx, uint64(len(input)))
		if errAlloc != nil {
			return 0, fmt.Errorf("failed to allocate in guest: %w", errAlloc)
		}
		if len(resAlloc) == 0 {
			return 0, fmt.Errorf("allocate returned no results")
		}
		ptr := uint32(resAlloc[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit
		if !k.module.Memory().Write(ptr, input) {
			return 0, fmt.Errorf("failed to write input to guest memory")
		}
		results, err = f.Call(ctx, uint64(ptr), uint64(len(input)))
	}

	if err != nil {
		return 0, fmt.Errorf("calling %s: %w", name, err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0], nil
}

func (k *Kernel) readPacked(packed uint64) ([]byte, error) {
	ptr, length := wazeroadapter.UnpackPtrLen(packed)
	if length == 0 {
		return nil, nil
	}
	data, ok := wazeroadapter.ReadBytes(k.module, ptr, length)
	if !ok {
		return nil, fmt.Errorf("failed to read response from memory")
	}
	return data, nil
}
