package ports

import "github.com/gristlabs/gristbridge/domain/entities"

// ConfigParser parses raw bytes into a bridge Config.
type ConfigParser interface {
	// Parse unmarshals bytes into a Config struct. Fields absent from the
	// input keep the values already present in base.
	Parse(data []byte, base entities.Config) (*entities.Config, error)
}
