package toolloop

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/skosovsky/toolloop/jsonvalue"
)

// Validatable is implemented by argument structs that need custom business validation.
// Called after schema validation and unmarshaling.
type Validatable interface {
	Validate() error
}

// schemaResource is the in-memory location documents are compiled under; it is never fetched.
const schemaResource = "https://toolloop.local/input.json"

var issuePrinter = message.NewPrinter(language.English)

// validator is a compiled schema document.
type validator struct {
	schema *jsonschema.Schema
}

// compileDocument compiles a schema document. The document is not mutated.
func compileDocument(doc map[string]any) (*validator, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaResource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &validator{schema: sch}, nil
}

// validateJSON decodes argsJSON and runs Layer 1 (schema) validation. It returns the decoded
// instance so callers can skip a second parse when they do not need a typed value.
func (v *validator) validateJSON(argsJSON []byte) (any, error) {
	inst, err := jsonvalue.Decode(argsJSON)
	if err != nil {
		return nil, wrapJSONParseError(err)
	}
	if err := v.validate(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// validate checks an already-decoded instance and converts validator output into Issues.
func (v *validator) validate(inst any) error {
	err := v.schema.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ClientError{Reason: "schema validation failed", Issues: []Issue{{Message: err.Error()}}, Err: ErrValidation}
	}
	var issues []Issue
	collectIssues(ve, &issues)
	slices.SortStableFunc(issues, func(a, b Issue) int {
		return cmp.Compare(a.Path, b.Path)
	})
	return &ClientError{Reason: "schema validation failed", Issues: issues, Err: ErrValidation}
}

// collectIssues flattens the validation error tree; leaves are the concrete problems.
func collectIssues(ve *jsonschema.ValidationError, out *[]Issue) {
	if len(ve.Causes) == 0 {
		*out = append(*out, Issue{
			Path:    instancePointer(ve.InstanceLocation),
			Message: ve.ErrorKind.LocalizedString(issuePrinter),
		})
		return
	}
	for _, c := range ve.Causes {
		collectIssues(c, out)
	}
}

func instancePointer(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteByte('/')
		tok = strings.ReplaceAll(tok, "~", "~0")
		b.WriteString(strings.ReplaceAll(tok, "/", "~1"))
	}
	return b.String()
}

// validateCustom runs Layer 2 (Validatable) if args implements it.
func validateCustom(args any) error {
	if v, ok := args.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
