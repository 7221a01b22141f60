// Package convert translates values between guest-native and boundary-safe
// form. Composite values are converted recursively and guest callables
// become callback references the host can invoke.
package convert

import (
	"context"
	"encoding"
	"fmt"
	"reflect"
	"time"

	"github.com/gristlabs/gristbridge/domain/ports"
)

// maxDepth bounds recursion so self-referencing values fail instead of
// overflowing the stack.
const maxDepth = 64

// GuestConvertible is implemented by boundary values that can turn
// themselves into guest-native values.
type GuestConvertible interface {
	ToGuest() (any, error)
}

// Callable is a guest object that can be invoked like a function.
type Callable interface {
	Invoke(ctx context.Context, args []any) (any, error)
}

// CallbackWrapper makes guest functions remotely invokable.
// ports.Transport satisfies it.
type CallbackWrapper interface {
	WrapCallback(fn ports.CallbackFunc) (ports.CallbackRef, error)
}

// Converter converts values crossing the boundary.
type Converter struct {
	wrapper CallbackWrapper
}

// New creates a Converter that wraps callables with w.
func New(w CallbackWrapper) *Converter {
	return &Converter{wrapper: w}
}

// AsCallback reports whether v is a guest callable and returns it as a
// CallbackFunc.
func AsCallback(v any) (ports.CallbackFunc, bool) {
	switch fn := v.(type) {
	case ports.CallbackFunc:
		return fn, fn != nil
	case func(context.Context, []any) (any, error):
		return fn, fn != nil
	case Callable:
		return fn.Invoke, true
	default:
		return nil, false
	}
}

// ToBoundary converts a guest value into boundary-safe form.
func (c *Converter) ToBoundary(v any) (any, error) {
	return c.toBoundary(v, 0)
}

// WrapCallback wraps fn so that the host can invoke it. Incoming arguments are
// passed through FromBoundary and the result through ToBoundary.
func (c *Converter) WrapCallback(fn ports.CallbackFunc) (ports.CallbackRef, error) {
	if c.wrapper == nil {
		return nil, fmt.Errorf("convert: no callback wrapper configured")
	}
	return c.wrapper.WrapCallback(func(ctx context.Context, args []any) (any, error) {
		guestArgs := make([]any, len(args))
		for i, arg := range args {
			converted, err := FromBoundary(arg)
			if err != nil {
				return nil, fmt.Errorf("convert: callback argument %d: %w", i, err)
			}
			guestArgs[i] = converted
		}
		result, err := fn(ctx, guestArgs)
		if err != nil {
			return nil, err
		}
		return c.ToBoundary(result)
	})
}

func (c *Converter) toBoundary(v any, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("convert: value nested deeper than %d levels", maxDepth)
	}

	switch val := v.(type) {
	case nil, bool, string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64,
		[]byte, time.Time:
		return val, nil
	case ports.CallbackRef, ports.Reference:
		return val, nil
	case map[string]any:
		return c.convertStringMap(val, depth)
	case []any:
		return c.convertSlice(val, depth)
	}

	if fn, ok := AsCallback(v); ok {
		return c.WrapCallback(fn)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		return c.convertMap(rv, depth)
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			item, err := c.toBoundary(rv.Index(i).Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case reflect.Func:
		return nil, fmt.Errorf("convert: unsupported function type %T", v)
	default:
		// Scalars of named types and structs are left to the transport's
		// own serialization.
		return v, nil
	}
}

func (c *Converter) convertStringMap(m map[string]any, depth int) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, item := range m {
		converted, err := c.toBoundary(item, depth+1)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = converted
	}
	return out, nil
}

func (c *Converter) convertSlice(s []any, depth int) ([]any, error) {
	out := make([]any, len(s))
	for i, item := range s {
		converted, err := c.toBoundary(item, depth+1)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = converted
	}
	return out, nil
}

// convertMap turns any map into a plain object keyed by the string form of
// its keys.
func (c *Converter) convertMap(rv reflect.Value, depth int) (map[string]any, error) {
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key, err := mapKey(iter.Key())
		if err != nil {
			return nil, err
		}
		converted, err := c.toBoundary(iter.Value().Interface(), depth+1)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = converted
	}
	return out, nil
}

func mapKey(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
		b, err := tm.MarshalText()
		if err != nil {
			return "", fmt.Errorf("convert: map key: %w", err)
		}
		return string(b), nil
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Bool:
		return fmt.Sprint(k.Interface()), nil
	default:
		return "", fmt.Errorf("convert: unsupported map key type %s", k.Type())
	}
}

// FromBoundary converts a boundary result into a guest value. Only values
// implementing GuestConvertible are converted; anything else is returned
// unchanged.
func FromBoundary(v any) (any, error) {
	if gc, ok := v.(GuestConvertible); ok {
		return gc.ToGuest()
	}
	return v, nil
}
