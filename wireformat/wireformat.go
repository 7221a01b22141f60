// Package wireformat defines the JSON wire format structures for calls
// crossing the boundary between the guest bridge and the host plugin API.
// These types must remain stable and backward compatible as they define the
// contract between the two contexts.
package wireformat

import (
	"time"

	"github.com/gristlabs/gristbridge/domain/entities"
	"github.com/gristlabs/gristbridge/domain/ports"
)

// Marker keys identifying references embedded in plain JSON values.
const (
	CallbackKey = "__callback__"
	RemoteKey   = "__remote__"
)

// ContextWireFormat is the JSON wire format for context.Context propagation.
type ContextWireFormat struct {
	Deadline  *time.Time `json:"deadline,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	TimeoutMs int64      `json:"timeout_ms,omitempty"`
	Canceled  bool       `json:"canceled,omitempty"`
}

// CallRequestWire is one boundary call from guest to host. Target is the
// path of the remote object the method lives on, empty for the API root.
type CallRequestWire struct {
	Kwargs  map[string]any    `json:"kwargs,omitempty"`
	Method  string            `json:"method"`
	Target  []string          `json:"target,omitempty"`
	Args    []any             `json:"args"`
	Context ContextWireFormat `json:"context"`
}

// CallResponseWire is the host's answer to a CallRequestWire.
type CallResponseWire struct {
	Result any                   `json:"result,omitempty"`
	Error  *entities.ErrorDetail `json:"error,omitempty"`
}

// EventWire is a host-initiated invocation of a guest callback.
type EventWire struct {
	Callback string            `json:"callback"`
	Args     []any             `json:"args"`
	Context  ContextWireFormat `json:"context"`
}

// CallbackRefWire is how a guest callback travels inside a value.
type CallbackRefWire struct {
	Callback string `json:"__callback__"`
}

// RemoteRefWire is how a host object travels inside a value.
type RemoteRefWire struct {
	Remote []string `json:"__remote__"`
}

// LogMessageWire is the JSON wire format for a guest log record.
type LogMessageWire struct {
	Timestamp time.Time         `json:"timestamp"`
	Attrs     []LogAttrWire     `json:"attrs,omitempty"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Context   ContextWireFormat `json:"context"`
}

// LogAttrWire represents a single slog attribute for wire transfer.
type LogAttrWire struct {
	Key   string `json:"key"`
	Type  string `json:"type"`  // "string", "int64", "bool", "float64", "time", "error", "json", "any"
	Value string `json:"value"` // String representation of the value
}

// PathReference is implemented by references that can be sent back to the
// host by path.
type PathReference interface {
	RemotePath() []string
}

// Encode replaces references inside v with their marker objects so the
// result can be marshaled as JSON.
func Encode(v any) any {
	switch val := v.(type) {
	case ports.CallbackRef:
		return CallbackRefWire{Callback: val.CallbackID()}
	case PathReference:
		return RemoteRefWire{Remote: val.RemotePath()}
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Encode(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Encode(item)
		}
		return out
	default:
		return v
	}
}

// EncodeArgs applies Encode to each argument.
func EncodeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = Encode(a)
	}
	return out
}

// AsCallbackRef reports whether a decoded JSON value is a callback marker.
func AsCallbackRef(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return "", false
	}
	id, ok := m[CallbackKey].(string)
	return id, ok && id != ""
}

// AsRemoteRef reports whether a decoded JSON value is a remote object marker.
func AsRemoteRef(v any) ([]string, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return nil, false
	}
	raw, ok := m[RemoteKey].([]any)
	if !ok {
		return nil, false
	}
	path := make([]string, 0, len(raw))
	for _, seg := range raw {
		s, ok := seg.(string)
		if !ok {
			return nil, false
		}
		path = append(path, s)
	}
	return path, true
}
