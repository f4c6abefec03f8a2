// Copyright Contributors to the KubeTask project

// Package paramvalidate handles type coercion and bound checking for
// int/string/bool template parameters.
package paramvalidate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
)

// Definition is one declared template parameter.
type Definition struct {
	Type          string // "int" | "string" | "bool"
	DefaultValue  any
	HasDefault    bool
	MinValue      *int64
	MaxValue      *int64
	MinLength     *int
	MaxLength     *int
	AllowedValues []any
}

// DefinitionFromDoc decodes a ParameterDefinition out of its JSON-shaped form.
func DefinitionFromDoc(d jobmodel.Doc) (Definition, error) {
	typ, _ := jobmodel.GetString(d, "type")
	def := Definition{Type: typ}
	if v, ok := d["defaultValue"]; ok {
		def.DefaultValue = v
		def.HasDefault = true
	}
	if v, ok := d["minValue"]; ok {
		n := toInt64(v)
		def.MinValue = &n
	}
	if v, ok := d["maxValue"]; ok {
		n := toInt64(v)
		def.MaxValue = &n
	}
	if v, ok := d["minLength"]; ok {
		n := int(toInt64(v))
		def.MinLength = &n
	}
	if v, ok := d["maxLength"]; ok {
		n := int(toInt64(v))
		def.MaxLength = &n
	}
	if v, ok := jobmodel.GetSlice(d, "allowedValues"); ok {
		def.AllowedValues = v
	}
	switch typ {
	case "int", "string", "bool":
		// supported
	default:
		return def, jexerr.New(jexerr.Unsupported, "parameter type %q is not int/string/bool", typ)
	}
	return def, nil
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int:
		return int64(t)
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

// Validate type-checks and bound-checks value against def, returning the
// coerced Go value (int64, string, or bool) ready for splicing.
func Validate(name string, def Definition, value any) (any, error) {
	switch def.Type {
	case "int":
		return validateInt(name, def, value)
	case "string":
		return validateString(name, def, value)
	case "bool":
		return validateBool(name, def, value)
	default:
		return nil, jexerr.New(jexerr.Unsupported, "parameter %q has unsupported type %q", name, def.Type)
	}
}

func validateInt(name string, def Definition, value any) (any, error) {
	var s string
	switch t := value.(type) {
	case float64:
		// Reject non-integral floats; 3.5 must not coerce to 3.
		if t != float64(int64(t)) {
			return nil, jexerr.New(jexerr.TypeMismatch, "parameter %q value %v is not an integer", name, value)
		}
		s = strconv.FormatInt(int64(t), 10)
	case string:
		s = t
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	default:
		return nil, jexerr.New(jexerr.TypeMismatch, "parameter %q value %v is not an integer", name, value)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, jexerr.New(jexerr.TypeMismatch, "parameter %q value %q is not an integer", name, s)
	}
	// Canonical round-trip: rejects leading zeros, "+1", whitespace, etc.
	if strconv.FormatInt(n, 10) != s {
		return nil, jexerr.New(jexerr.TypeMismatch, "parameter %q value %q is not a canonical integer", name, s)
	}
	if def.MinValue != nil && n < *def.MinValue {
		return nil, jexerr.New(jexerr.OutOfRange, "parameter %q value %d is below minValue %d", name, n, *def.MinValue)
	}
	if def.MaxValue != nil && n > *def.MaxValue {
		return nil, jexerr.New(jexerr.OutOfRange, "parameter %q value %d is above maxValue %d", name, n, *def.MaxValue)
	}
	if err := checkAllowed(name, def, n); err != nil {
		return nil, err
	}
	return n, nil
}

func validateString(name string, def Definition, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "parameter %q value %v is not a string", name, value)
	}
	if s == "" {
		return nil, jexerr.New(jexerr.OutOfRange, "parameter %q must not be empty", name)
	}
	if def.MinLength != nil && len(s) < *def.MinLength {
		return nil, jexerr.New(jexerr.OutOfRange, "parameter %q length %d is below minLength %d", name, len(s), *def.MinLength)
	}
	if def.MaxLength != nil && len(s) > *def.MaxLength {
		return nil, jexerr.New(jexerr.OutOfRange, "parameter %q length %d is above maxLength %d", name, len(s), *def.MaxLength)
	}
	if err := checkAllowed(name, def, s); err != nil {
		return nil, err
	}
	return s, nil
}

func validateBool(name string, def Definition, value any) (any, error) {
	switch t := value.(type) {
	case bool:
		if err := checkAllowed(name, def, t); err != nil {
			return nil, err
		}
		return t, nil
	case string:
		var b bool
		switch strings.ToLower(t) {
		case "true":
			b = true
		case "false":
			b = false
		default:
			return nil, jexerr.New(jexerr.TypeMismatch, "parameter %q value %q is not a bool", name, t)
		}
		if err := checkAllowed(name, def, b); err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, jexerr.New(jexerr.TypeMismatch, "parameter %q value %v is not a bool", name, value)
}

func checkAllowed(name string, def Definition, coerced any) error {
	if len(def.AllowedValues) == 0 {
		return nil
	}
	for _, av := range def.AllowedValues {
		if fmt.Sprint(av) == fmt.Sprint(coerced) {
			return nil
		}
	}
	return jexerr.New(jexerr.OutOfRange, "parameter %q value %v is not one of the allowed values", name, coerced)
}
