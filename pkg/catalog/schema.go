package catalog

import (
	"strings"

	"github.com/dukex/flowscribe/pkg/failures"
	"github.com/dukex/flowscribe/pkg/models"
	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema is the minimal shape a definition must have before the
// controller acts on it. Unknown fields are allowed.
const definitionSchema = `{
  "type": "object",
  "required": ["id", "name", "nodes"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "active": {"type": "boolean"},
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string"},
          "type": {"type": "string"},
          "parameters": {"type": "object"}
        }
      }
    },
    "connections": {"type": ["object", "null"]},
    "settings": {"type": ["object", "null"]}
  }
}`

var definitionLoader = gojsonschema.NewStringLoader(definitionSchema)

func decodeDefinition(op string, data []byte) (*models.WorkflowDefinition, error) {
	result, err := gojsonschema.Validate(definitionLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, failures.Wrap(failures.KindMalformed, op, "unreadable workflow definition", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return nil, &failures.Error{
			Kind:    failures.KindMalformed,
			Op:      op,
			Message: "unexpected workflow definition shape",
			Details: strings.Join(messages, "; "),
		}
	}

	var definition models.WorkflowDefinition

	err = json.Unmarshal(data, &definition)
	if err != nil {
		return nil, failures.Wrap(failures.KindMalformed, op, "unexpected workflow definition shape", err)
	}

	return &definition, nil
}
