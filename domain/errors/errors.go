// Package errors provides domain-specific error types for the bridge.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/gristlabs/gristbridge/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail. New error types only need to implement this
// interface without modifying ToErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// ErrOneCallback is the message of ArgumentShapeError.
const ErrOneCallback = "only one callback-style argument supported"

// ArgumentShapeError reports a remote call whose arguments mix a callback
// with other arguments. It is raised before any boundary traffic.
type ArgumentShapeError struct {
	Method    string
	Callbacks int
	Others    int
}

func (e *ArgumentShapeError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s: %s (got %d callbacks, %d other arguments)", e.Method, ErrOneCallback, e.Callbacks, e.Others)
	}
	return fmt.Sprintf("%s (got %d callbacks, %d other arguments)", ErrOneCallback, e.Callbacks, e.Others)
}

// ToErrorDetail implements DetailedError.
func (e *ArgumentShapeError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "usage", Code: "argument_shape"}
}

// BoundaryError represents a rejected boundary call.
type BoundaryError struct {
	Err    error
	Remote *entities.ErrorDetail // error reported by the other side, if any
	Path   []string
}

func (e *BoundaryError) Error() string {
	target := strings.Join(e.Path, ".")
	if target == "" {
		target = "<root>"
	}
	switch {
	case e.Remote != nil:
		return fmt.Sprintf("boundary call %s rejected: %s", target, e.Remote.Error())
	case e.Err != nil:
		return fmt.Sprintf("boundary call %s failed: %v", target, e.Err)
	default:
		return fmt.Sprintf("boundary call %s failed", target)
	}
}

func (e *BoundaryError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if e.Remote != nil {
		return e.Remote
	}
	return nil
}

// ToErrorDetail implements DetailedError.
func (e *BoundaryError) ToErrorDetail() *entities.ErrorDetail {
	detail := &entities.ErrorDetail{Message: e.Error(), Type: "boundary", Code: strings.Join(e.Path, ".")}
	if e.Remote != nil {
		detail.Wrapped = e.Remote
		detail.IsTimeout = e.Remote.IsTimeout
	}
	return detail
}

// ListenerError represents a failure inside a guarded listener invocation.
type ListenerError struct {
	Err      error
	Panic    any    // recovered panic value, nil for returned errors
	Listener string // declared listener name
	Trace    string // rendered trace with bridge frames removed
}

func (e *ListenerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("listener %s panicked: %v", e.Listener, e.Panic)
	}
	return fmt.Sprintf("listener %s failed: %v", e.Listener, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ListenerError) ToErrorDetail() *entities.ErrorDetail {
	typ := "listener"
	if e.Panic != nil {
		typ = "panic"
	}
	return &entities.ErrorDetail{Message: e.Error(), Type: typ, Code: e.Listener, Stack: []byte(e.Trace)}
}

// LockError is returned when waiting for the execution lock is abandoned.
type LockError struct {
	Err      error
	Listener string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("waiting for execution lock for %s: %v", e.Listener, e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *LockError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "timeout", Code: "execution_lock", IsTimeout: true}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// WireFormatError represents a wire format encoding/decoding error.
type WireFormatError struct {
	Err       error
	Operation string
	Type      string
}

func (e *WireFormatError) Error() string {
	return fmt.Sprintf("wire format %s failed for %s: %v", e.Operation, e.Type, e.Err)
}

func (e *WireFormatError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *WireFormatError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "internal", Code: "wire_format"}
}
