package control

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/command-v1.json
var commandSchemaJSON string

// Validator checks raw operator payloads before they reach the plane.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("command-v1.json",
		strings.NewReader(commandSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("command-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateCommand returns an error wrapping ErrMalformed when data is not a
// valid command payload.
func (v *Validator) ValidateCommand(data []byte) error {
	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrMalformed, err)
	}

	if err := v.schema.Validate(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return nil
}

// Payload is the wire form of an operator command.
type Payload struct {
	Action string   `json:"action"`
	Value  *float64 `json:"value,omitempty"`
}

// DecodeCommand validates data and returns the parsed action and value.
func (v *Validator) DecodeCommand(data []byte) (Action, *float64, error) {
	if err := v.ValidateCommand(data); err != nil {
		return "", nil, err
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	action, err := ParseAction(p.Action)
	if err != nil {
		return "", nil, err
	}
	return action, p.Value, nil
}
