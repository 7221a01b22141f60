package host

import (
	"log/slog"

	"github.com/gristlabs/gristbridge/hostfuncs"
)

// Option defines a functional option for configuring the Launcher.
type Option func(*Launcher)

// WithHostFunctions serves registry to the guest.
func WithHostFunctions(registry *hostfuncs.HandlerRegistry) Option {
	return func(l *Launcher) {
		l.registry = registry
	}
}

// WithLogger sets the logger receiving guest log_message records.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) {
		l.logger = logger
	}
}

// WithModuleName overrides the host module name guests import from.
func WithModuleName(name string) Option {
	return func(l *Launcher) {
		l.moduleName = name
	}
}
