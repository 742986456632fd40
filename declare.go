package toolloop

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/invopop/jsonschema"

	"github.com/skosovsky/toolloop/jsonvalue"
)

// Declared is a Schema[T] built from a hand-written schema declaration instead of
// reflection. The declaration and T must describe the same shape; Parse validates
// against the declaration and then decodes into T with encoding/json.
type Declared[T any] struct {
	doc       map[string]any
	validator *validator
}

// Declare compiles a declaration (see Object, String, ...) into a Schema[T].
// The declaration is rendered once; later changes to it have no effect.
func Declare[T any](decl *jsonschema.Schema, opts ...DeclareOption) (*Declared[T], error) {
	if decl == nil {
		return nil, errors.New("schema declaration must not be nil")
	}
	var o declareOptions
	for _, opt := range opts {
		opt(&o)
	}
	data, err := json.Marshal(decl)
	if err != nil {
		return nil, fmt.Errorf("render schema declaration: %w", err)
	}
	doc, err := jsonvalue.DecodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("render schema declaration: %w", err)
	}
	delete(doc, "$schema")
	doc, v, err := finishDocument(doc, o.strict)
	if err != nil {
		return nil, err
	}
	return &Declared[T]{doc: doc, validator: v}, nil
}

// MustDeclare is Declare for package-level declarations; it panics on error.
func MustDeclare[T any](decl *jsonschema.Schema, opts ...DeclareOption) *Declared[T] {
	d, err := Declare[T](decl, opts...)
	if err != nil {
		panic("toolloop: " + err.Error())
	}
	return d
}

// Document returns a shallow copy of the schema document.
func (d *Declared[T]) Document() map[string]any { return maps.Clone(d.doc) }

// Parse validates argsJSON against the declaration and decodes it into T.
func (d *Declared[T]) Parse(argsJSON []byte) (T, error) {
	return parseTyped[T](d.validator, argsJSON)
}

var _ Schema[struct{}] = (*Declared[struct{}])(nil)

// DeclareOption configures Declare.
type DeclareOption func(*declareOptions)

type declareOptions struct {
	strict bool
}

// DeclareStrict applies strict mode (see WithStrict) to the rendered declaration.
func DeclareStrict() DeclareOption {
	return func(o *declareOptions) { o.strict = true }
}

// Property is one named member of an Object declaration.
type Property struct {
	Name     string
	Schema   *jsonschema.Schema
	Required bool
}

// Required declares a property that must be present.
func Required(name string, s *jsonschema.Schema) Property {
	return Property{Name: name, Schema: s, Required: true}
}

// Optional declares a property that may be omitted.
func Optional(name string, s *jsonschema.Schema) Property {
	return Property{Name: name, Schema: s}
}

// SchemaOption sets per-node metadata on a declaration.
type SchemaOption func(*jsonschema.Schema)

// Object declares an object with the given properties, in declaration order.
func Object(props ...Property) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "object", Properties: jsonschema.NewProperties()}
	for _, p := range props {
		s.Properties.Set(p.Name, p.Schema)
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// String declares a string.
func String(opts ...SchemaOption) *jsonschema.Schema { return node("string", opts) }

// Number declares a floating-point number.
func Number(opts ...SchemaOption) *jsonschema.Schema { return node("number", opts) }

// Integer declares an integer.
func Integer(opts ...SchemaOption) *jsonschema.Schema { return node("integer", opts) }

// Boolean declares a boolean.
func Boolean(opts ...SchemaOption) *jsonschema.Schema { return node("boolean", opts) }

// Array declares a list whose elements match items.
func Array(items *jsonschema.Schema, opts ...SchemaOption) *jsonschema.Schema {
	s := node("array", opts)
	s.Items = items
	return s
}

func node(typ string, opts []SchemaOption) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: typ}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Description sets the human-readable description shown to the model.
func Description(desc string) SchemaOption {
	return func(s *jsonschema.Schema) { s.Description = desc }
}

// Enum restricts the node to the given values.
func Enum(values ...any) SchemaOption {
	return func(s *jsonschema.Schema) { s.Enum = values }
}

// Default records a default value.
func Default(v any) SchemaOption {
	return func(s *jsonschema.Schema) { s.Default = v }
}

// Format sets the format keyword (e.g. "date", "uuid").
func Format(f string) SchemaOption {
	return func(s *jsonschema.Schema) { s.Format = f }
}

// Minimum sets an inclusive lower bound. The literal is kept as written.
func Minimum(n json.Number) SchemaOption {
	return func(s *jsonschema.Schema) { s.Minimum = n }
}

// Maximum sets an inclusive upper bound. The literal is kept as written.
func Maximum(n json.Number) SchemaOption {
	return func(s *jsonschema.Schema) { s.Maximum = n }
}

// MinItems sets the minimum list length.
func MinItems(n uint64) SchemaOption {
	return func(s *jsonschema.Schema) { s.MinItems = &n }
}
