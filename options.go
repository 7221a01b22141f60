package gristbridge

import (
	"log/slog"

	"github.com/gristlabs/gristbridge/guard"
	"github.com/gristlabs/gristbridge/registry"
)

// Option configures an API.
type Option func(*apiConfig)

type apiConfig struct {
	cfg    Config
	lock   *guard.Lock
	logger *slog.Logger
	warn   registry.WarnFunc
}

func defaultAPIConfig() apiConfig {
	return apiConfig{
		cfg:    DefaultConfig(),
		lock:   processLock,
		logger: slog.Default(),
	}
}

// WithConfig replaces the default settings. The config is validated by New.
func WithConfig(cfg Config) Option {
	return func(c *apiConfig) {
		c.cfg = cfg
	}
}

// WithLock runs listeners under lock instead of the process-wide lock.
func WithLock(lock *guard.Lock) Option {
	return func(c *apiConfig) {
		c.lock = lock
	}
}

// WithLogger sets the logger used for listener failures, registry warnings
// and boundary call tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *apiConfig) {
		c.logger = logger
	}
}

// WithWarnFunc receives registry warnings instead of the logger.
func WithWarnFunc(fn registry.WarnFunc) Option {
	return func(c *apiConfig) {
		c.warn = fn
	}
}
