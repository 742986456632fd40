package toolloop

import (
	"encoding/json"
	"errors"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/skosovsky/toolloop/jsonvalue"
)

// Schema describes and decodes the input of a tool whose handler accepts T.
// Document is the declarative description sent to the model; Parse validates a raw
// argument payload against that same document and decodes it into T, or returns a
// *ClientError listing every issue found (no partial success).
type Schema[T any] interface {
	Document() map[string]any
	Parse(argsJSON []byte) (T, error)
}

var (
	customTypesMu sync.RWMutex
	customTypes   = make(map[reflect.Type]*jsonschema.Schema)
)

// RegisterType registers a custom Go type to be mapped to a JSON Schema type/format in generated schemas.
// emptyInstance is a value of the type to register (e.g. uuid.UUID{}, or MyMoney{}); it must not be nil.
// jsonType is the JSON Schema type (e.g. "string", "number"); it must not be empty.
// format is optional (e.g. "uuid", "decimal"). Registration is by reflect.TypeOf(emptyInstance).
// Call RegisterType at application startup before the first NewReflectedTool or NewExtractor.
func RegisterType(emptyInstance any, jsonType, format string) {
	if emptyInstance == nil {
		panic("toolloop: RegisterType emptyInstance must not be nil")
	}
	if jsonType == "" {
		panic("toolloop: RegisterType jsonType must not be empty")
	}
	t := reflect.TypeOf(emptyInstance)
	s := &jsonschema.Schema{Type: jsonType, Format: format}
	customTypesMu.Lock()
	defer customTypesMu.Unlock()
	customTypes[t] = s
}

// buildTypeSchemas returns a copy of registered type schemas for use in ForOptions.
func buildTypeSchemas() map[reflect.Type]*jsonschema.Schema {
	customTypesMu.RLock()
	defer customTypesMu.RUnlock()
	out := make(map[reflect.Type]*jsonschema.Schema, len(customTypes))
	for t, s := range customTypes {
		if s != nil {
			out[t] = s.CloneSchemas()
		}
	}
	return out
}

// generateSchema produces the schema document and a compiled validator for type T.
// It is called once when building a tool. strict sets additionalProperties: false
// for all objects (OpenAI Structured Outputs).
func generateSchema[T any](strict bool) (map[string]any, *validator, error) {
	opts := &jsonschema.ForOptions{TypeSchemas: buildTypeSchemas()}
	schema, err := jsonschema.For[T](opts)
	if err != nil {
		return nil, nil, err
	}
	if schema == nil {
		return nil, nil, errNilSchema
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, err
	}
	doc, err := jsonvalue.DecodeObject(data)
	if err != nil {
		return nil, nil, err
	}
	enrichSchemaFromStructTags(doc, reflect.TypeOf(*new(T)))
	return finishDocument(doc, strict)
}

// finishDocument applies strict mode, drops ids and compiles the document.
func finishDocument(doc map[string]any, strict bool) (map[string]any, *validator, error) {
	if strict {
		applyStrictMode(doc)
	}
	stripSchemaIDs(doc)
	v, err := compileDocument(doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, v, nil
}

// enrichSchemaFromStructTags adds description, enum and default from struct tags to root-level properties.
// typ may be a pointer; json tag (first part before comma) is used to match property keys.
func enrichSchemaFromStructTags(doc map[string]any, typ reflect.Type) {
	if doc == nil || typ == nil {
		return
	}
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return
	}
	props, ok := doc["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return
	}
	jsonToField := make(map[string]reflect.StructField)
	for i := range typ.NumField() {
		field := typ.Field(i)
		jsonTag := strings.Split(field.Tag.Get("json"), ",")[0]
		if jsonTag == "" || jsonTag == "-" {
			continue
		}
		jsonToField[jsonTag] = field
	}
	for key, val := range props {
		prop, ok := val.(map[string]any)
		if !ok {
			continue
		}
		field, ok := jsonToField[key]
		if !ok {
			continue
		}
		if desc := field.Tag.Get("description"); desc != "" {
			prop["description"] = desc
		}
		if enumStr := field.Tag.Get("enum"); enumStr != "" {
			parts := strings.Split(enumStr, ",")
			enum := make([]any, len(parts))
			for i, p := range parts {
				enum[i] = strings.TrimSpace(p)
			}
			prop["enum"] = enum
		}
		if def, ok := field.Tag.Lookup("default"); ok {
			prop["default"] = def
		}
	}
}

// walkSchema recursively visits every map node in the schema tree (including $defs and definitions).
func walkSchema(doc map[string]any, visit func(map[string]any)) {
	if doc == nil {
		return
	}
	visit(doc)
	for _, val := range doc {
		switch v := val.(type) {
		case map[string]any:
			walkSchema(v, visit)
		case []any:
			for _, item := range v {
				if m2, ok := item.(map[string]any); ok {
					walkSchema(m2, visit)
				}
			}
		}
	}
}

// applyStrictMode sets additionalProperties: false for every object in the schema
// and marks every property required.
func applyStrictMode(doc map[string]any) {
	walkSchema(doc, func(n map[string]any) {
		if _, isObj := n["properties"]; isObj {
			n["additionalProperties"] = false
			if props, ok := n["properties"].(map[string]any); ok {
				keys := make([]string, 0, len(props))
				for k := range props {
					keys = append(keys, k)
				}
				slices.Sort(keys)
				required := make([]any, len(keys))
				for i, k := range keys {
					required[i] = k
				}
				if len(required) > 0 {
					n["required"] = required
				}
			}
		}
	})
}

var errNilSchema = errors.New("schema reflection returned nil")

// stripSchemaIDs removes id and $id from schema so resolution does not depend on them.
func stripSchemaIDs(doc map[string]any) {
	walkSchema(doc, func(n map[string]any) {
		for _, k := range []string{"id", "$id"} {
			if _, ok := n[k].(string); ok {
				delete(n, k)
			}
		}
	})
}

// cloneDocument deep-copies a document through its JSON form, keeping numbers as json.Number.
func cloneDocument(doc map[string]any) (map[string]any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return jsonvalue.DecodeObject(data)
}
