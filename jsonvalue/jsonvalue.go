// Package jsonvalue converts schema documents between their document representation
// and the wire representation handed to chat transports.
//
// Both representations cover the same closed set of kinds: null, boolean, integer,
// floating-point number, string, list and mapping. They differ only in how numbers
// are carried:
//
//   - document: json.Number (as produced by a json.Decoder with UseNumber), so numeric
//     constraints echoed in a schema keep their literal text;
//   - wire: int64 for integer literals, float64 for every other literal.
//
// Integers stay integers and floats stay floats across a round trip. A float64 with an
// integral value is written back as a literal carrying a fraction ("2.0"), never "2".
// Go integer types of any width are accepted on the wire side as long as the value fits
// int64. NaN, infinities, integers that overflow int64 and Go values outside the closed
// set are reported as errors instead of being coerced.
package jsonvalue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Kind enumerates the closed set of value kinds.
type Kind int

const (
	Invalid Kind = iota
	Null
	Bool
	Integer
	Float
	String
	List
	Object
)

var kindNames = [...]string{"invalid", "null", "boolean", "integer", "number", "string", "array", "object"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "invalid"
	}
	return kindNames[k]
}

// ErrUnsupported is returned for values outside the closed set of kinds.
var ErrUnsupported = errors.New("unsupported value")

// KindOf reports the kind of a document or wire value. Integer literals in json.Number
// form are Integer, other literals Float.
func KindOf(v any) Kind {
	switch val := v.(type) {
	case nil:
		return Null
	case bool:
		return Bool
	case json.Number:
		if isIntegerLiteral(string(val)) {
			return Integer
		}
		return Float
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Integer
	case float32, float64:
		return Float
	case string:
		return String
	case []any:
		return List
	case map[string]any:
		return Object
	default:
		return Invalid
	}
}

// Decode parses JSON text into a document value (numbers as json.Number).
// Trailing data after the first value is an error.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid character after top-level value")
	}
	return v, nil
}

// DecodeObject is Decode for documents whose root must be a mapping.
func DecodeObject(data []byte) (map[string]any, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %s", KindOf(v))
	}
	return m, nil
}

// ToWire converts a document value to its wire representation. The input is not mutated.
func ToWire(v any) (any, error) {
	return convert(v, "", toWireScalar)
}

// FromWire converts a wire value back to its document representation. The input is not mutated.
func FromWire(v any) (any, error) {
	return convert(v, "", fromWireScalar)
}

// ToWireObject is ToWire for a document mapping.
func ToWireObject(doc map[string]any) (map[string]any, error) {
	if doc == nil {
		return nil, nil
	}
	out, err := ToWire(doc)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

// FromWireObject is FromWire for a wire mapping.
func FromWireObject(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	out, err := FromWire(m)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

type scalarFunc func(v any, path string) (any, error)

// convert walks lists and mappings node by node and applies scalar to every leaf.
func convert(v any, path string, scalar scalarFunc) (any, error) {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			c, err := convert(item, path+"/"+strconv.Itoa(i), scalar)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			c, err := convert(item, path+"/"+escapePointer(k), scalar)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case nil, bool, string:
		return val, nil
	default:
		return scalar(v, path)
	}
}

func toWireScalar(v any, path string) (any, error) {
	n, ok := v.(json.Number)
	if !ok {
		return nil, unsupported(v, path)
	}
	s := string(n)
	if isIntegerLiteral(s) {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("jsonvalue: integer %s at %q: %w", s, pathOrRoot(path), err)
		}
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("jsonvalue: number %s at %q: %w", s, pathOrRoot(path), err)
	}
	return f, nil
}

func fromWireScalar(v any, path string) (any, error) {
	switch val := v.(type) {
	case int:
		return json.Number(strconv.FormatInt(int64(val), 10)), nil
	case int8:
		return json.Number(strconv.FormatInt(int64(val), 10)), nil
	case int16:
		return json.Number(strconv.FormatInt(int64(val), 10)), nil
	case int32:
		return json.Number(strconv.FormatInt(int64(val), 10)), nil
	case int64:
		return json.Number(strconv.FormatInt(val, 10)), nil
	case uint:
		return fromUnsigned(uint64(val), path)
	case uint64:
		return fromUnsigned(val, path)
	case uint8:
		return json.Number(strconv.FormatUint(uint64(val), 10)), nil
	case uint16:
		return json.Number(strconv.FormatUint(uint64(val), 10)), nil
	case uint32:
		return json.Number(strconv.FormatUint(uint64(val), 10)), nil
	case float32:
		return formatFloat(float64(val), 32, path)
	case float64:
		return formatFloat(val, 64, path)
	case json.Number:
		// Already in document form (e.g. a wire map decoded with UseNumber).
		return val, nil
	default:
		return nil, unsupported(v, path)
	}
}

// fromUnsigned keeps the int64 wire range: a value ToWire could not read back is an error.
func fromUnsigned(u uint64, path string) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("jsonvalue: integer %d at %q overflows int64", u, pathOrRoot(path))
	}
	return json.Number(strconv.FormatUint(u, 10)), nil
}

func formatFloat(f float64, bitSize int, path string) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("jsonvalue: %w: non-finite number at %q", ErrUnsupported, pathOrRoot(path))
	}
	s := strconv.FormatFloat(f, 'g', -1, bitSize)
	if isIntegerLiteral(s) {
		s += ".0"
	}
	return json.Number(s), nil
}

// isIntegerLiteral reports whether s is a JSON number without fraction or exponent.
func isIntegerLiteral(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, ".eE")
}

func unsupported(v any, path string) error {
	return fmt.Errorf("jsonvalue: %w %T at %q", ErrUnsupported, v, pathOrRoot(path))
}

func pathOrRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func escapePointer(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}
