package models

import (
	"github.com/invopop/jsonschema"
)

// CollectionSchema returns the JSON Schema of a persisted collection: an
// array whose items are either a single image or a personalization code.
func CollectionSchema() *jsonschema.Schema {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	simple := r.Reflect(&SimpleImageDoc{})
	simple.Version = ""
	simple.Title = "Image"
	composite := r.Reflect(&PersonalizationCodeDoc{})
	composite.Version = ""
	composite.Title = "PersonalizationCode"
	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Gallery collection",
		Description: "Every record of the gallery, serialized as one JSON array under a single key.",
		Type:        "array",
		Items: &jsonschema.Schema{
			OneOf: []*jsonschema.Schema{simple, composite},
		},
	}
}
