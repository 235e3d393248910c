package asyncapi

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed asyncapi.yaml
var specYAML []byte

const documentURL = "asyncapi://inventory-ledger/asyncapi.json"

// eventTypesKey lists the CloudEvent types a component schema describes
const eventTypesKey = "x-event-types"

// Spec returns the embedded AsyncAPI document
func Spec() []byte {
	return specYAML
}

// EventValidator validates CloudEvent data payloads against AsyncAPI component schemas
type EventValidator struct {
	schemas map[string]*jsonschema.Schema
}

type document struct {
	AsyncAPI   string `yaml:"asyncapi"`
	Components struct {
		Schemas map[string]struct {
			EventTypes []string `yaml:"x-event-types"`
		} `yaml:"schemas"`
	} `yaml:"components"`
}

// NewEventValidator compiles the embedded document
func NewEventValidator() (*EventValidator, error) {
	return NewEventValidatorFromBytes(specYAML)
}

// NewEventValidatorFromBytes compiles every component schema that declares x-event-types
func NewEventValidatorFromBytes(specBytes []byte) (*EventValidator, error) {
	var doc document
	if err := yaml.Unmarshal(specBytes, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI spec: %w", err)
	}

	// Round-trip through JSON so the compiler sees JSON numbers and string-keyed maps.
	var generic interface{}
	if err := yaml.Unmarshal(specBytes, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI spec: %w", err)
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to convert AsyncAPI spec to JSON: %w", err)
	}
	resource, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode AsyncAPI spec: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(documentURL, resource); err != nil {
		return nil, fmt.Errorf("failed to add AsyncAPI resource: %w", err)
	}

	v := &EventValidator{schemas: make(map[string]*jsonschema.Schema)}
	for name, meta := range doc.Components.Schemas {
		if len(meta.EventTypes) == 0 {
			continue
		}
		compiled, err := compiler.Compile(documentURL + "#/components/schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		for _, eventType := range meta.EventTypes {
			v.schemas[eventType] = compiled
		}
	}

	return v, nil
}

// ValidateData validates an event payload for the given type. data may be a Go value,
// a json.RawMessage or raw bytes.
func (v *EventValidator) ValidateData(eventType string, data interface{}) error {
	schema, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("no schema found for event type: %s", eventType)
	}
	if data == nil {
		return fmt.Errorf("event data is required")
	}

	var raw []byte
	switch d := data.(type) {
	case json.RawMessage:
		raw = d
	case []byte:
		raw = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		raw = b
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decode event data: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("event data validation failed for type %s: %w", eventType, err)
	}
	return nil
}

// HasSchema checks if a schema exists for the given event type
func (v *EventValidator) HasSchema(eventType string) bool {
	_, ok := v.schemas[eventType]
	return ok
}
