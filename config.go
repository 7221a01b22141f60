package gristbridge

import (
	stdErrors "errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/gristlabs/gristbridge/domain/entities"
	"github.com/gristlabs/gristbridge/domain/errors"
	"github.com/gristlabs/gristbridge/infrastructure/parser"
	"github.com/gristlabs/gristbridge/output"
)

// Config holds the bridge settings.
type Config = entities.Config

// validate is a package-level singleton for better performance.
// Creating a new validator on each call is expensive; reusing is recommended.
var validate = validator.New()

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		SlotCapacity:    output.DefaultCapacity,
		OverflowMessage: output.DefaultOverflowMessage,
		LogLevel:        "info",
		SeedOnRegister:  true,
	}
}

// ValidateConfig checks cfg against its validation tags. The first failing
// field is reported as an *errors.ConfigError.
func ValidateConfig(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if stdErrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &errors.ConfigError{
			Field: fe.Field(),
			Err:   fmt.Errorf("failed on '%s' rule (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return &errors.ConfigError{Err: err}
}

// ParseConfig reads YAML settings over the defaults and validates them.
func ParseConfig(data []byte) (Config, error) {
	cfg, err := parser.NewYamlConfigParser().Parse(data, DefaultConfig())
	if err != nil {
		return Config{}, &errors.ConfigError{Err: err}
	}
	if err := ValidateConfig(*cfg); err != nil {
		return Config{}, err
	}
	return *cfg, nil
}

// LoadConfig reads a YAML settings file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data)
}
