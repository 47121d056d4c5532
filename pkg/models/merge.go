package models

import (
	"reflect"
	"strings"
	"sync"
)

var fieldIndexCache sync.Map // reflect.Type -> map[string]int

// jsonFieldIndex maps the JSON name of every exported field of t to its index.
func jsonFieldIndex(t reflect.Type) map[string]int {
	if cached, ok := fieldIndexCache.Load(t); ok {
		return cached.(map[string]int)
	}
	index := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		index[name] = i
	}
	fieldIndexCache.Store(t, index)
	return index
}

// MergeFields returns current with the named top-level fields copied from
// patch. Field names are JSON names. A nil mask replaces the whole record;
// an empty, non-nil mask leaves current unchanged. Unknown names are ignored.
// T must be a struct type.
func MergeFields[T any](current, patch T, fields []string) T {
	if fields == nil {
		return patch
	}
	out := current
	dst := reflect.ValueOf(&out).Elem()
	src := reflect.ValueOf(patch)
	index := jsonFieldIndex(dst.Type())
	for _, name := range fields {
		if i, ok := index[name]; ok {
			dst.Field(i).Set(src.Field(i))
		}
	}
	return out
}

// JSONFields lists the JSON names of every field of T, for building full masks.
func JSONFields[T any]() []string {
	var zero T
	index := jsonFieldIndex(reflect.TypeOf(zero))
	names := make([]string, 0, len(index))
	for name := range index {
		names = append(names, name)
	}
	return names
}
