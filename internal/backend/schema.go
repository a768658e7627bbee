package backend

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema names a JSON Schema definition for a response body.
type Schema struct {
	Name       string
	Definition map[string]any
}

var moduleDef = map[string]any{
	"type":     "object",
	"required": []any{"id", "code", "orderIndex"},
	"properties": map[string]any{
		"id":         map[string]any{"type": "integer"},
		"code":       map[string]any{"type": "string", "minLength": 1},
		"orderIndex": map[string]any{"type": "integer"},
		"name":       map[string]any{"type": "string"},
	},
}

var (
	modulesSchema = &Schema{
		Name: "modules",
		Definition: map[string]any{
			"type":  "array",
			"items": moduleDef,
		},
	}

	attemptStatusSchema = &Schema{
		Name: "attempt-status",
		Definition: map[string]any{
			"type":     "object",
			"required": []any{"count", "maxAttempts"},
			"properties": map[string]any{
				"count":                 map[string]any{"type": "integer", "minimum": 0},
				"maxAttempts":           map[string]any{"type": "integer", "minimum": 0},
				"lastCompletedModuleId": map[string]any{"type": []any{"integer", "null"}},
				"isCompleted":           map[string]any{"type": "boolean"},
			},
		},
	}

	sessionSchema = &Schema{
		Name: "session",
		Definition: map[string]any{
			"type":     "object",
			"required": []any{"sessionId"},
			"properties": map[string]any{
				"sessionId":    map[string]any{"type": "string", "minLength": 1},
				"module":       moduleDef,
				"languageCode": map[string]any{"type": "string"},
			},
		},
	}

	submitSchema = &Schema{
		Name: "submit-result",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"nextModuleId": map[string]any{"type": []any{"integer", "null"}},
			},
		},
	}
)

// schemaCache caches compiled JSON schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// validate checks raw against schema. It returns the underlying cause; the
// caller wraps it in *MalformedResponseError.
func validate(schema *Schema, raw []byte) error {
	if schema == nil {
		return nil
	}

	parsed, err := jsonschema.UnmarshalJSON(bytesReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	compiled, err := compiledSchema(schema)
	if err != nil {
		return fmt.Errorf("compile schema %q: %w", schema.Name, err)
	}

	if err := compiled.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// compiledSchema returns a cached compiled schema or compiles and caches it.
func compiledSchema(schema *Schema) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(schema.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The compiler expects values as produced by its own JSON decoder, so
	// round-trip the Go map through JSON.
	defBytes, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema definition: %w", err)
	}
	defParsed, err := jsonschema.UnmarshalJSON(bytesReader(defBytes))
	if err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	schemaURL := fmt.Sprintf("schema://%s.json", schema.Name)
	if err := c.AddResource(schemaURL, defParsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}

	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	schemaCache.Store(schema.Name, compiled)
	return compiled, nil
}
