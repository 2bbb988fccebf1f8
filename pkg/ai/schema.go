package ai

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const detectionSchemaURL = "tamanduai://schemas/plagiarism-detection.json"

const detectionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["similarity_score"],
  "properties": {
    "similarity_score": {"type": "number", "minimum": 0, "maximum": 100},
    "ai_generated_probability": {"type": ["number", "null"], "minimum": 0, "maximum": 100},
    "sources": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["url"],
        "properties": {
          "url": {"type": "string", "minLength": 1},
          "title": {"type": "string"},
          "similarity": {"type": "number", "minimum": 0, "maximum": 100},
          "matched_percentage": {"type": "number", "minimum": 0, "maximum": 100}
        }
      }
    }
  }
}`

func compileDetectionSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(detectionSchemaURL, strings.NewReader(detectionSchema)); err != nil {
		return nil, fmt.Errorf("load detection schema: %w", err)
	}
	schema, err := compiler.Compile(detectionSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile detection schema: %w", err)
	}
	return schema, nil
}
