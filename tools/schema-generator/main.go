// Command schema-generator writes the JSON schema for cryoview.yml, with the
// logging extension folded in under "logging".
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/grovetools/cryoview/config"
	"github.com/grovetools/cryoview/logging"
)

func main() {
	out := flag.String("out", "config/cryoview.schema.json", "Output path")
	flag.Parse()

	base, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating config schema: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(base, &doc); err != nil {
		log.Fatalf("Error decoding config schema: %v", err)
	}

	props, ok := doc["properties"].(map[string]interface{})
	if !ok {
		log.Fatalf("Config schema has no properties")
	}
	props["logging"] = loggingSchema()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Fatalf("Error marshaling schema: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		log.Fatalf("Error creating output directory: %v", err)
	}
	if err := os.WriteFile(*out, append(data, '\n'), 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}
	log.Printf("Wrote %s", *out)
}

func loggingSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}
	s := r.Reflect(&logging.Config{})
	s.Version = ""
	s.Description = "The 'logging' extension."
	// Every logging field is optional.
	s.Required = nil
	return s
}
