package hostfuncs

import (
	"context"
	"encoding/json"

	"github.com/gristlabs/gristbridge/wireformat"
)

// HostFunc is a generic function signature for host functions.
// It accepts a context and a typed request, and returns a typed response.
type HostFunc[Req any, Resp any] func(context.Context, Req) Resp

// ByteHandler is a function that accepts raw bytes (JSON) and returns raw bytes (JSON).
// This is the common interface every transport can use.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// CallFunc serves one plugin API method. The returned value is encoded as
// the call result; a returned error becomes the response's error detail.
type CallFunc func(ctx context.Context, req wireformat.CallRequestWire) (any, error)

// NewJSONHandler wraps a typed HostFunc into a ByteHandler.
// It handles the JSON unmarshalling of the request and marshalling of the response.
// Malformed requests produce an ErrorResponse rather than a Go error.
func NewJSONHandler[Req any, Resp any](fn HostFunc[Req, Resp]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if err := json.Unmarshal(payload, &req); err != nil {
			return NewValidationError("failed to unmarshal request: " + err.Error()).ToJSON(), nil
		}

		resp := fn(ctx, req)

		respBytes, err := json.Marshal(resp)
		if err != nil {
			return NewInternalError("failed to marshal response: " + err.Error()).ToJSON(), nil
		}

		return respBytes, nil
	}
}

// NewCallHandler wraps a CallFunc into a ByteHandler speaking
// CallRequestWire in and CallResponseWire out.
//
// Usage:
//
//	ready := hostfuncs.NewCallHandler(func(ctx context.Context, req wireformat.CallRequestWire) (any, error) {
//	    return nil, api.Ready(ctx, nil)
//	})
func NewCallHandler(fn CallFunc) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req wireformat.CallRequestWire
		if err := json.Unmarshal(payload, &req); err != nil {
			return NewValidationError("failed to unmarshal request: " + err.Error()).ToJSON(), nil
		}

		var resp wireformat.CallResponseWire
		result, err := fn(ctx, req)
		if err != nil {
			resp.Error = errorDetailFor(err)
		} else {
			resp.Result = wireformat.Encode(result)
		}

		respBytes, err := json.Marshal(resp)
		if err != nil {
			return NewInternalError("failed to marshal response: " + err.Error()).ToJSON(), nil
		}
		return respBytes, nil
	}
}
