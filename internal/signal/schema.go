package signal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// conditionsSchema is the fixed JSON Schema for a TenantStageAction's
// signal_conditions predicate. The decision engine validates a stored
// blob against it when executing the action, before any condition is
// evaluated, and rejects a malformed one.
const conditionsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["logic", "conditions"],
  "properties": {
    "logic": {"type": "string", "enum": ["ALL", "ANY"]},
    "conditions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["signal", "operator", "value", "on_missing"],
        "properties": {
          "signal": {"type": "string", "minLength": 1},
          "operator": {"type": "string", "enum": ["=", "!=", ">", ">=", "<", "<="]},
          "value": {"type": "string"},
          "on_missing": {"type": "string", "enum": ["BLOCK", "ALLOW", "WARN"]}
        }
      }
    }
  }
}`

var compiledConditionsSchema = mustCompileSchema(conditionsSchema)

func mustCompileSchema(schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("signal-conditions.json", bytes.NewReader([]byte(schema))); err != nil {
		panic(fmt.Sprintf("signal: compile conditions schema resource: %v", err))
	}
	compiled, err := compiler.Compile("signal-conditions.json")
	if err != nil {
		panic(fmt.Sprintf("signal: compile conditions schema: %v", err))
	}
	return compiled
}

// SignalConditions is the decoded form of a TenantStageAction's
// signal_conditions predicate.
type SignalConditions struct {
	Logic      string      `json:"logic"`
	Conditions []Condition `json:"conditions"`
}

// ValidateConditionsJSON validates a raw signal_conditions blob against
// the fixed schema and returns the decoded predicate. A nil/empty blob
// is valid and returns (nil, nil) since signal_conditions is optional.
func ValidateConditionsJSON(raw []byte) (*SignalConditions, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse signal_conditions: %w", err)
	}

	if err := compiledConditionsSchema.Validate(payload); err != nil {
		if vErr, ok := err.(*jsonschema.ValidationError); ok {
			return nil, fmt.Errorf("signal_conditions schema validation failed: %s", flattenValidationErrors(vErr))
		}
		return nil, fmt.Errorf("signal_conditions schema validation failed: %w", err)
	}

	var decoded SignalConditions
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode signal_conditions: %w", err)
	}
	return &decoded, nil
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
