package keymap

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/key"

	"github.com/grovetools/cryoview/config"
)

// Overrides maps a snake_case binding name to replacement keys.
type Overrides map[string][]string

// FromConfig reads the `tui.keybindings` section.
func FromConfig(cfg *config.Config) (Overrides, error) {
	if cfg == nil {
		return nil, nil
	}
	var tuiCfg struct {
		Keybindings Overrides `yaml:"keybindings"`
	}
	if err := cfg.UnmarshalExtension("tui", &tuiCfg); err != nil {
		return nil, err
	}
	return tuiCfg.Keybindings, nil
}

// ApplyOverrides applies keybinding overrides to any keymap struct.
// It uses reflection to map config keys (snake_case) to struct fields (CamelCase).
// Only fields of type key.Binding are processed. Embedded structs are recursively processed.
//
// Example:
//
//	km := NewWatch()
//	ApplyOverrides(&km, overrides) // overrides["select_all"] -> km.SelectAll
func ApplyOverrides(km interface{}, overrides Overrides) {
	if overrides == nil {
		return
	}

	v := reflect.ValueOf(km)
	if v.Kind() != reflect.Ptr {
		return
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return
	}

	applyOverridesRecursive(v, overrides)
}

func applyOverridesRecursive(v reflect.Value, overrides Overrides) {
	t := v.Type()
	bindingType := reflect.TypeOf(key.Binding{})

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}
		if fieldType.Anonymous && field.Kind() == reflect.Struct {
			applyOverridesRecursive(field, overrides)
			continue
		}
		if fieldType.Type != bindingType {
			continue
		}

		keys, ok := overrides[camelToSnake(fieldType.Name)]
		if !ok || len(keys) == 0 {
			continue
		}
		// Keep the help description, show the first new key.
		desc := field.Interface().(key.Binding).Help().Desc
		field.Set(reflect.ValueOf(key.NewBinding(
			key.WithKeys(keys...),
			key.WithHelp(keys[0], desc),
		)))
	}
}

// camelToSnake converts a CamelCase string to snake_case.
// Examples: SelectAll -> select_all, NextCategory -> next_category
func camelToSnake(s string) string {
	var result strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				result.WriteRune('_')
			}
			result.WriteRune(unicode.ToLower(r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
