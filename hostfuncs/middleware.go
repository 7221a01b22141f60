package hostfuncs

import (
	"context"
	"log/slog"
	"time"

	"github.com/gristlabs/gristbridge/wireformat"
)

// Middleware is a function that wraps a ByteHandler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
type Middleware func(next ByteHandler) ByteHandler

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware returns a middleware that catches panics and converts
// them to structured ErrorResponse JSON instead of crashing the host.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = NewPanicError(r).ToJSON()
					err = nil // Return JSON error, not Go error
				}
			}()
			return next(ctx, payload)
		}
	}
}

// LoggingMiddleware returns a middleware that logs plugin API invocations
// at debug level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			method := "unknown"
			var requestID string
			if hc, ok := ctx.(HostContext); ok {
				method = HandlerName(hc.Target(), hc.Method())
				requestID = hc.RequestID()
			}
			start := time.Now()
			resp, err := next(ctx, payload)
			if err != nil {
				logger.ErrorContext(ctx, "plugin API call failed",
					"method", method, "request_id", requestID, "error", err)
			} else {
				logger.DebugContext(ctx, "plugin API call completed",
					"method", method, "request_id", requestID, "duration", time.Since(start))
			}
			return resp, err
		}
	}
}

// SchemaValidationMiddleware rejects request payloads that do not match the
// CallRequestWire schema.
func SchemaValidationMiddleware(v *wireformat.Validator) Middleware {
	if v == nil {
		v = wireformat.NewValidator()
	}
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			if err := v.Validate(wireformat.KindCallRequest, payload); err != nil {
				return NewValidationError(err.Error()).ToJSON(), nil
			}
			return next(ctx, payload)
		}
	}
}
