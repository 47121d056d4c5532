package notify

import (
	"embed"
	"fmt"
	"sync"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/schema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Validator checks notification payloads against per-category JSON Schemas.
// Categories without a schema pass.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*schema.Validator
}

// NewValidator compiles the embedded schemas of every known category.
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[string]*schema.Validator)}
	compiled := make(map[string]*schema.Validator)
	for category, file := range schemaFiles {
		sv, ok := compiled[file]
		if !ok {
			data, err := schemaFS.ReadFile("schemas/" + file)
			if err != nil {
				return nil, fmt.Errorf("failed to read schema %s: %w", file, err)
			}
			sv, err = schema.Compile(file, data)
			if err != nil {
				return nil, err
			}
			compiled[file] = sv
		}
		v.schemas[category] = sv
	}
	return v, nil
}

// Register sets or replaces the schema for category.
func (v *Validator) Register(category string, schemaJSON []byte) error {
	sv, err := schema.Compile(category+".json", schemaJSON)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.schemas[category] = sv
	v.mu.Unlock()
	return nil
}

// Validate returns a MALFORMED_EVENT error when msg's payload does not match
// its category's schema.
func (v *Validator) Validate(msg Message) error {
	if v == nil {
		return nil
	}
	v.mu.RLock()
	sv, ok := v.schemas[msg.Category]
	v.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := sv.ValidateJSON(msg.Payload); err != nil {
		return errors.MalformedEvent(msg.Category, err)
	}
	return nil
}
