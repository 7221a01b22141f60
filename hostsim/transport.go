package hostsim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/gristlabs/gristbridge/domain/errors"
	"github.com/gristlabs/gristbridge/domain/ports"
	"github.com/gristlabs/gristbridge/hostfuncs"
	"github.com/gristlabs/gristbridge/internal/callcontext"
	"github.com/gristlabs/gristbridge/wireformat"
)

// Transport is a loopback ports.Transport. Every call is encoded as a
// CallRequestWire, served by the handler registry and decoded back, so
// values cross the same JSON boundary a real host would impose.
//
// Events are delivered on a single worker goroutine in the order they were
// emitted. Delivery never happens on the goroutine that caused the event.
type Transport struct {
	registry  *hostfuncs.HandlerRegistry
	validator *wireformat.Validator
	logger    *slog.Logger

	mu        sync.Mutex
	callbacks map[string]ports.CallbackFunc
	queue     []queuedEvent
	closed    bool

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

type queuedEvent struct {
	event   wireformat.EventWire
	flushed chan struct{}
}

func newTransport(registry *hostfuncs.HandlerRegistry, validator *wireformat.Validator, logger *slog.Logger) *Transport {
	t := &Transport{
		registry:  registry,
		validator: validator,
		logger:    logger,
		callbacks: make(map[string]ports.CallbackFunc),
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Root returns a reference to the plugin API object.
func (t *Transport) Root() ports.Reference {
	return &remoteRef{t: t}
}

// WrapCallback registers fn under a fresh id.
func (t *Transport) WrapCallback(fn ports.CallbackFunc) (ports.CallbackRef, error) {
	if fn == nil {
		return nil, fmt.Errorf("hostsim: nil callback")
	}
	id := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("hostsim: transport closed")
	}
	t.callbacks[id] = fn
	return callbackRef(id), nil
}

// Callbacks returns the number of wrapped callbacks.
func (t *Transport) Callbacks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.callbacks)
}

// Flush blocks until every event emitted before the call has been
// delivered. It must not be called from inside an event delivery.
func (t *Transport) Flush(ctx context.Context) error {
	marker := make(chan struct{})
	if !t.enqueue(queuedEvent{flushed: marker}) {
		return nil
	}
	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops event delivery. Pending events are dropped.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	pending := t.queue
	t.queue = nil
	t.mu.Unlock()

	for _, q := range pending {
		if q.flushed != nil {
			close(q.flushed)
		}
	}
	close(t.done)
	t.wg.Wait()
	return nil
}

func (t *Transport) emit(ctx context.Context, callbackID string, args []any) {
	ctx, _ = callcontext.WithRequestID(ctx)
	t.enqueue(queuedEvent{event: wireformat.EventWire{
		Callback: callbackID,
		Args:     wireformat.EncodeArgs(args),
		Context:  callcontext.ContextToWire(ctx),
	}})
}

func (t *Transport) enqueue(q queuedEvent) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.queue = append(t.queue, q)
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
	return true
}

func (t *Transport) next() (queuedEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return queuedEvent{}, false
	}
	q := t.queue[0]
	t.queue = t.queue[1:]
	return q, true
}

func (t *Transport) run() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case <-t.notify:
		}
		for {
			q, ok := t.next()
			if !ok {
				break
			}
			if q.flushed != nil {
				close(q.flushed)
				continue
			}
			t.deliver(q.event)
		}
	}
}

func (t *Transport) deliver(ev wireformat.EventWire) {
	payload, err := json.Marshal(ev)
	if err != nil {
		t.logger.Error("hostsim: encode event", "callback", ev.Callback, "error", err)
		return
	}
	if err := t.validator.Validate(wireformat.KindEvent, payload); err != nil {
		t.logger.Error("hostsim: invalid event", "callback", ev.Callback, "error", err)
		return
	}

	var decoded wireformat.EventWire
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.logger.Error("hostsim: decode event", "callback", ev.Callback, "error", err)
		return
	}

	t.mu.Lock()
	fn, ok := t.callbacks[decoded.Callback]
	t.mu.Unlock()
	if !ok {
		t.logger.Warn("hostsim: event for unknown callback", "callback", decoded.Callback)
		return
	}

	ctx, cancel := callcontext.WireToContext(context.Background(), decoded.Context)
	defer cancel()

	args := make([]any, len(decoded.Args))
	for i, a := range decoded.Args {
		args[i] = t.decode(a)
	}
	if _, err := fn(ctx, args); err != nil {
		t.logger.WarnContext(ctx, "hostsim: callback failed",
			"callback", decoded.Callback, "request_id", decoded.Context.RequestID, "error", err)
	}
}

func (t *Transport) call(ctx context.Context, path []string, args []any, kwargs map[string]any) (any, error) {
	if len(path) == 0 {
		return nil, &errors.BoundaryError{Err: fmt.Errorf("the API root is not callable")}
	}

	ctx, _ = callcontext.WithRequestID(ctx)
	req := wireformat.CallRequestWire{
		Context: callcontext.ContextToWire(ctx),
		Target:  path[:len(path)-1],
		Method:  path[len(path)-1],
		Args:    wireformat.EncodeArgs(args),
	}
	if len(kwargs) > 0 {
		req.Kwargs, _ = wireformat.Encode(kwargs).(map[string]any)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &errors.BoundaryError{Path: path, Err: &errors.WireFormatError{Operation: "encode", Type: "CallRequestWire", Err: err}}
	}

	raw, err := t.registry.Call(ctx, payload)
	if err != nil {
		return nil, &errors.BoundaryError{Path: path, Err: err}
	}

	var resp wireformat.CallResponseWire
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &errors.BoundaryError{Path: path, Err: &errors.WireFormatError{Operation: "decode", Type: "CallResponseWire", Err: err}}
	}
	if resp.Error != nil {
		return nil, &errors.BoundaryError{Path: path, Remote: resp.Error}
	}
	return t.decode(resp.Result), nil
}

// decode turns a JSON-decoded value into its guest-facing form: reference
// markers become references and composite values become JSValue.
func (t *Transport) decode(v any) any {
	if path, ok := wireformat.AsRemoteRef(v); ok {
		return &remoteRef{t: t, path: path}
	}
	if id, ok := wireformat.AsCallbackRef(v); ok {
		return callbackRef(id)
	}
	switch v.(type) {
	case map[string]any, []any:
		return JSValue{value: v}
	default:
		return v
	}
}

type callbackRef string

func (c callbackRef) CallbackID() string { return string(c) }

type remoteRef struct {
	t    *Transport
	path []string
}

func (r *remoteRef) Get(name string) ports.Reference {
	path := make([]string, len(r.path), len(r.path)+1)
	copy(path, r.path)
	return &remoteRef{t: r.t, path: append(path, name)}
}

func (r *remoteRef) Call(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	return r.t.call(ctx, r.path, args, kwargs)
}

func (r *remoteRef) RemotePath() []string {
	return append([]string(nil), r.path...)
}

// JSValue is a composite value received from the host. It converts to plain
// Go maps and slices on request.
type JSValue struct {
	value any
}

// ToGuest returns the plain value.
func (v JSValue) ToGuest() (any, error) {
	return v.value, nil
}
