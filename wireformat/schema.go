package wireformat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// GenerateSchema creates a JSON schema from a Go struct.
// It uses the `invopop/jsonschema` library to reflect on the struct
// and generate a standard JSON Schema (Draft 2020-12).
func GenerateSchema(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true, // Expand struct definitions inline
	}
	schema := reflector.Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}

// Validator checks raw boundary messages against schemas generated from the
// wire types. Compiled schemas are cached per message kind.
type Validator struct {
	compiled map[string]*sjsonschema.Schema
	models   map[string]any
	mu       sync.Mutex
}

// Message kinds known to the default Validator.
const (
	KindCallRequest  = "call_request"
	KindCallResponse = "call_response"
	KindEvent        = "event"
	KindLogMessage   = "log_message"
)

// NewValidator creates a Validator for the boundary message kinds.
func NewValidator() *Validator {
	return &Validator{
		compiled: make(map[string]*sjsonschema.Schema),
		models: map[string]any{
			KindCallRequest:  &CallRequestWire{},
			KindCallResponse: &CallResponseWire{},
			KindEvent:        &EventWire{},
			KindLogMessage:   &LogMessageWire{},
		},
	}
}

// Validate checks payload against the schema of kind.
func (v *Validator) Validate(kind string, payload []byte) error {
	sch, err := v.schema(kind)
	if err != nil {
		return err
	}

	var obj any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return fmt.Errorf("invalid %s payload: %w", kind, err)
	}
	if err := sch.Validate(obj); err != nil {
		return fmt.Errorf("invalid %s payload: %w", kind, err)
	}
	return nil
}

func (v *Validator) schema(kind string) (*sjsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if sch, ok := v.compiled[kind]; ok {
		return sch, nil
	}
	model, ok := v.models[kind]
	if !ok {
		return nil, fmt.Errorf("no schema registered for message kind %s", kind)
	}

	raw, err := GenerateSchema(model)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", kind, err)
	}

	url := kind + ".json"
	compiler := sjsonschema.NewCompiler()
	compiler.Draft = sjsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource for %s: %w", kind, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("invalid schema for %s: %w", kind, err)
	}
	v.compiled[kind] = sch
	return sch, nil
}
