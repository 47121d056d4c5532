package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the JSON Schema for cryoview configuration files.
// Known sections are closed; unknown top-level keys are left to extensions
// such as logging.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
		FieldNameTag:               "yaml",
		ExpandedStruct:             true,
		Anonymous:                  true,
	}

	s := r.Reflect(&Config{})
	s.Title = "cryoview configuration"
	s.Description = "Schema for cryoview.yml and cryoview.toml."
	s.AdditionalProperties = jsonschema.TrueSchema

	return json.MarshalIndent(s, "", "  ")
}
