package packs

import (
	"github.com/invopop/jsonschema"
)

// Schema describes the pack file format for editors and CI validation.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(Document))
	schema.Title = "CapsWalk Language Pack"
	schema.Description = "Characters a board can show and the key sequences that select them."
	return schema
}
