package ports

import "context"

// CallbackFunc is a guest function made invokable from the other side of the
// boundary. Arguments arrive in boundary form.
type CallbackFunc func(ctx context.Context, args []any) (any, error)

// CallbackRef is the transport's handle for a wrapped CallbackFunc. It is
// what travels across the boundary in place of the function itself.
type CallbackRef interface {
	// CallbackID identifies the callback within its transport.
	CallbackID() string
}

// Reference is a remote object or method living on the host side.
type Reference interface {
	// Get extends the attribute chain. It performs no boundary traffic.
	Get(name string) Reference

	// Call invokes the referenced method with boundary-safe arguments.
	// Each call is exactly one boundary round trip.
	Call(ctx context.Context, args []any, kwargs map[string]any) (any, error)
}

// Transport carries calls between the guest and host contexts.
type Transport interface {
	// Root returns a reference to the host's plugin API object.
	Root() Reference

	// WrapCallback makes fn remotely invokable.
	WrapCallback(fn CallbackFunc) (CallbackRef, error)
}
