package hostfuncs

import (
	"encoding/json"
	"fmt"

	"github.com/gristlabs/gristbridge/domain/entities"
	"github.com/gristlabs/gristbridge/domain/errors"
)

// Error codes carried in ErrorResponse details.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeInternal   = "INTERNAL_ERROR"
)

// ErrorResponse represents a structured error returned to the guest.
// Its JSON shape is a CallResponseWire with only the error set, so callers
// decode every handler response the same way.
type ErrorResponse struct {
	Error *entities.ErrorDetail `json:"error"`
}

// ToJSON serializes the ErrorResponse to JSON bytes.
// Returns nil if serialization fails.
func (e ErrorResponse) ToJSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// NewValidationError creates an error response for bad input (e.g., malformed JSON).
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{
		Error: entities.NewErrorDetail("validation", message).WithCode(CodeValidation),
	}
}

// NewNotFoundError creates an error response for unknown method names.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{
		Error: entities.NewErrorDetail("not_found", "unknown plugin API method: "+name).WithCode(CodeNotFound),
	}
}

// NewInternalError creates an error response for unexpected failures.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{
		Error: entities.NewErrorDetail("internal", message).WithCode(CodeInternal),
	}
}

// NewPanicError creates an error response for recovered panics.
func NewPanicError(panicValue any) ErrorResponse {
	var msg string
	switch v := panicValue.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprintf("%v", v)
	}
	return ErrorResponse{
		Error: entities.NewErrorDetail("panic", "panic: "+msg).WithCode(CodeInternal),
	}
}

// errorDetailFor converts a handler error to its wire form.
func errorDetailFor(err error) *entities.ErrorDetail {
	if ae, ok := err.(*ArgError); ok {
		return entities.NewErrorDetail("validation", ae.Error()).WithCode(CodeValidation)
	}
	return errors.ToErrorDetail(err)
}
