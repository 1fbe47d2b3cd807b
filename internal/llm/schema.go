package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildRubricJSONSchema returns the shape check applied to a normalized model reply.
// Semantics (names present, weights positive, ranges ordered) belong to the validator.
func BuildRubricJSONSchema() map[string]any {
	nullableString := map[string]any{"type": []string{"string", "null"}}
	nullableNumber := map[string]any{"type": []string{"number", "null"}}

	level := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":        nullableString,
			"score_min":   nullableNumber,
			"score_max":   nullableNumber,
			"description": nullableString,
			"is_absent":   map[string]any{"type": "boolean"},
		},
	}
	dimension := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":   nullableString,
			"weight": nullableNumber,
			"levels": map[string]any{"type": "array", "items": level},
		},
	}
	return map[string]any{
		"type":     "object",
		"required": []string{"is_rubric"},
		"properties": map[string]any{
			"is_rubric":   map[string]any{"type": "boolean"},
			"confidence":  map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"rubric_name": nullableString,
			"reason":      nullableString,
			"dimensions":  map[string]any{"type": "array", "items": dimension},
		},
		"if": map[string]any{
			"properties": map[string]any{"is_rubric": map[string]any{"const": true}},
		},
		"then": map[string]any{"required": []string{"dimensions"}},
	}
}

var rubricSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return compileSchema(BuildRubricJSONSchema())
})

// ValidateRubricJSON checks data against the rubric reply schema, compiled once.
func ValidateRubricJSON(data []byte) error {
	schema, err := rubricSchema()
	if err != nil {
		return err
	}
	return validateCompiled(schema, data)
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func validateCompiled(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
