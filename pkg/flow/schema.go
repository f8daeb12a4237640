package flow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// TemplateSchema is the JSON schema every template document must satisfy
// before it is decoded.
const TemplateSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "flow"],
  "properties": {
    "id":   {"type": "string"},
    "name": {"type": "string", "minLength": 1},
    "flow": {
      "type": "object",
      "required": ["nodes"],
      "properties": {
        "nodes": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["id", "kind"],
            "properties": {
              "id":         {"type": "string", "minLength": 1},
              "kind":       {"enum": ["station", "start", "end"]},
              "station_id": {"type": "string"},
              "materials": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["material_id", "required_qty"],
                  "properties": {
                    "material_id":  {"type": "string", "minLength": 1},
                    "required_qty": {"type": "number", "minimum": 0}
                  }
                }
              }
            },
            "if":   {"properties": {"kind": {"const": "station"}}},
            "then": {"required": ["station_id"]}
          }
        },
        "edges": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["source", "target"],
            "properties": {
              "id":     {"type": "string"},
              "source": {"type": "string", "minLength": 1},
              "target": {"type": "string", "minLength": 1}
            }
          }
        }
      }
    }
  }
}`

var templateSchemaLoader = gojsonschema.NewStringLoader(TemplateSchema)

// ValidateDocument checks a raw template document against TemplateSchema.
func ValidateDocument(raw []byte) error {
	result, err := gojsonschema.Validate(templateSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return models.NewValidationError("document", "invalid template document: "+err.Error())
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}

	return models.NewValidationError("document", strings.Join(problems, "; "))
}

// DecodeTemplate validates a raw template document against the schema and
// decodes it. The id may be empty; callers assign one before running Validate.
func DecodeTemplate(raw []byte) (*models.WorkflowTemplate, error) {
	err := ValidateDocument(raw)
	if err != nil {
		return nil, err
	}

	var template models.WorkflowTemplate

	err = json.Unmarshal(raw, &template)
	if err != nil {
		return nil, models.NewValidationError("document", err.Error())
	}

	return &template, nil
}
