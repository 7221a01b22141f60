package hostfuncs

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/gristlabs/gristbridge/wireformat"
)

// ArgError reports a malformed positional argument.
type ArgError struct {
	Index  int
	Reason string
}

func (e *ArgError) Error() string {
	if e.Index < 0 {
		return e.Reason
	}
	return fmt.Sprintf("argument %d: %s", e.Index, e.Reason)
}

// Args gives typed access to decoded positional arguments.
type Args []any

// Len returns the number of arguments.
func (a Args) Len() int { return len(a) }

// String returns argument i as a string. Missing or null arguments yield
// ok=false and no error.
func (a Args) String(i int) (string, bool, error) {
	if i >= len(a) || a[i] == nil {
		return "", false, nil
	}
	s, ok := a[i].(string)
	if !ok {
		return "", false, &ArgError{Index: i, Reason: fmt.Sprintf("expected string, got %T", a[i])}
	}
	return s, true, nil
}

// Int64 returns argument i as an integer.
func (a Args) Int64(i int) (int64, error) {
	if i >= len(a) {
		return 0, &ArgError{Index: i, Reason: "missing"}
	}
	switch v := a[i].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, &ArgError{Index: i, Reason: fmt.Sprintf("expected integer, got %v", v)}
		}
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, &ArgError{Index: i, Reason: err.Error()}
		}
		return n, nil
	default:
		return 0, &ArgError{Index: i, Reason: fmt.Sprintf("expected integer, got %T", a[i])}
	}
}

// Map returns argument i as an object. Missing or null arguments yield nil.
func (a Args) Map(i int) (map[string]any, error) {
	if i >= len(a) || a[i] == nil {
		return nil, nil
	}
	m, ok := a[i].(map[string]any)
	if !ok {
		return nil, &ArgError{Index: i, Reason: fmt.Sprintf("expected object, got %T", a[i])}
	}
	return m, nil
}

// Callback returns the callback id carried by argument i.
func (a Args) Callback(i int) (string, error) {
	if i >= len(a) {
		return "", &ArgError{Index: i, Reason: "missing callback"}
	}
	id, ok := wireformat.AsCallbackRef(a[i])
	if !ok {
		return "", &ArgError{Index: i, Reason: "expected callback reference"}
	}
	return id, nil
}

// Into decodes argument i into dst via a JSON round trip.
func (a Args) Into(i int, dst any) error {
	if i >= len(a) {
		return &ArgError{Index: i, Reason: "missing"}
	}
	data, err := json.Marshal(a[i])
	if err != nil {
		return &ArgError{Index: i, Reason: err.Error()}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &ArgError{Index: i, Reason: err.Error()}
	}
	return nil
}
