package evaluation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// signalSchemaSchema is the fixed JSON Schema for a Template's
// signal_schema blob, validated the same way the signal package
// validates signal_conditions.
const signalSchemaSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["key", "type", "label"],
    "properties": {
      "key": {"type": "string", "minLength": 1},
      "type": {"type": "string", "enum": ["boolean", "integer", "float", "text"]},
      "label": {"type": "string", "minLength": 1},
      "aggregation": {"type": "string", "enum": ["MAJORITY", "UNANIMOUS", "ANY", "AVERAGE"]},
      "min": {"type": "number"},
      "max": {"type": "number"},
      "required": {"type": "boolean"}
    }
  }
}`

var compiledSignalSchemaSchema = mustCompileSchema(signalSchemaSchema)

func mustCompileSchema(schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("evaluation-signal-schema.json", bytes.NewReader([]byte(schema))); err != nil {
		panic(fmt.Sprintf("evaluation: compile signal schema resource: %v", err))
	}
	compiled, err := compiler.Compile("evaluation-signal-schema.json")
	if err != nil {
		panic(fmt.Sprintf("evaluation: compile signal schema: %v", err))
	}
	return compiled
}

// ValidateSignalSchemaJSON validates a raw signal_schema blob against
// the fixed schema and returns the decoded field list.
func ValidateSignalSchemaJSON(raw []byte) ([]SchemaField, error) {
	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse signal_schema: %w", err)
	}

	if err := compiledSignalSchemaSchema.Validate(payload); err != nil {
		if vErr, ok := err.(*jsonschema.ValidationError); ok {
			return nil, fmt.Errorf("signal_schema validation failed: %s", flattenValidationErrors(vErr))
		}
		return nil, fmt.Errorf("signal_schema validation failed: %w", err)
	}

	var decoded []SchemaField
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode signal_schema: %w", err)
	}
	return decoded, nil
}

func flattenValidationErrors(err *jsonschema.ValidationError) string {
	location := err.InstanceLocation
	if location == "" {
		location = "/"
	}
	msg := fmt.Sprintf("%s: %s", location, err.Message)
	for _, cause := range err.Causes {
		msg += "; " + flattenValidationErrors(cause)
	}
	return msg
}
