package models

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var (
	eventSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
		return gojsonschema.NewSchema(gojsonschema.NewGoLoader(EventJSONSchema()))
	})
	alertSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
		return gojsonschema.NewSchema(gojsonschema.NewGoLoader(AlertJSONSchema()))
	})
)

func nullable(t string) map[string]any {
	return map[string]any{"type": []any{t, "null"}}
}

// EventJSONSchema returns the JSON Schema (draft-07) for inbound events.
func EventJSONSchema() map[string]any {
	types := make([]any, 0, len(EventTypes()))
	for _, t := range EventTypes() {
		types = append(types, string(t))
	}
	return map[string]any{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"title":    "hw.event.v1",
		"type":     "object",
		"required": []any{"event_id", "type", "ts", "source"},
		"properties": map[string]any{
			"schema_version": map[string]any{"const": SchemaVersion},
			"event_id":       map[string]any{"type": "string", "minLength": 1},
			"type":           map[string]any{"enum": types},
			"ts":             map[string]any{"type": "string", "format": "date-time"},
			"site_id":        nullable("string"),
			"camera_id":      nullable("string"),
			"correlation_id": nullable("string"),
			"source": map[string]any{
				"type":     "object",
				"required": []any{"service", "instance_id"},
				"properties": map[string]any{
					"service":     map[string]any{"type": "string", "minLength": 1},
					"instance_id": map[string]any{"type": "string", "minLength": 1},
					"version":     nullable("string"),
				},
			},
			"payload":  map[string]any{"type": "object"},
			"evidence": nullable("object"),
		},
	}
}

// AlertJSONSchema returns the JSON Schema (draft-07) for published alerts.
func AlertJSONSchema() map[string]any {
	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title":   "hw.alert.v1",
		"type":    "object",
		"required": []any{
			"alert_id", "ts", "severity", "hazard_score", "summary", "explanation", "trigger",
		},
		"properties": map[string]any{
			"schema_version": map[string]any{"const": SchemaVersion},
			"alert_id":       map[string]any{"type": "string", "minLength": 1},
			"ts":             map[string]any{"type": "string", "format": "date-time"},
			"site_id":        nullable("string"),
			"camera_id":      nullable("string"),
			"severity": map[string]any{
				"enum": []any{string(SeverityInfo), string(SeverityWarning), string(SeverityCritical)},
			},
			"hazard_score":       map[string]any{"type": "number", "minimum": 0, "maximum": 100},
			"summary":            map[string]any{"type": "string"},
			"recommended_action": nullable("string"),
			"explanation": map[string]any{
				"type":     "object",
				"required": []any{"rule_id", "why"},
				"properties": map[string]any{
					"rule_id": map[string]any{"type": "string", "minLength": 1},
					"why":     map[string]any{"type": "string"},
					"inputs": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type":     "object",
							"required": []any{"name"},
						},
					},
				},
			},
			"trigger": map[string]any{
				"type":     "object",
				"required": []any{"event_ids"},
				"properties": map[string]any{
					"event_ids": map[string]any{
						"type":     "array",
						"minItems": 1,
						"items":    map[string]any{"type": "string"},
					},
					"correlation_id": nullable("string"),
				},
			},
			"evidence": nullable("object"),
			"debug":    nullable("object"),
		},
	}
}

func validateAgainst(compiled func() (*gojsonschema.Schema, error), data []byte) error {
	schema, err := compiled()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return &ValidationError{Problems: problems}
}
