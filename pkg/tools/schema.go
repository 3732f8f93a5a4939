package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects a tool's argument struct into an inline JSON
// schema. Called once per tool at construction; a struct that cannot be
// reflected is a programming error.
func generateSchema(v any) json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		Anonymous:                 true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)
	schema.Version = "" // the chat API rejects $schema in tool parameters

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("reflect tool schema for %T: %v", v, err))
	}
	return data
}
