package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

type anyValidator struct{}

func (anyValidator) Validate(value any) (any, error) { return value, nil }

// Any accepts every value unchanged.
func Any() Validator { return anyValidator{} }

type stringValidator struct{}

func (stringValidator) Validate(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, issuef(nil, "expected string, got "+kindOf(value))
	}
	return s, nil
}

// String accepts string values.
func String() Validator { return stringValidator{} }

type numberValidator struct{ integer bool }

func (v numberValidator) Validate(value any) (any, error) {
	var f float64
	switch n := value.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil, issuef(nil, "invalid number "+n.String())
		}
		f = parsed
	default:
		return nil, issuef(nil, "expected number, got "+kindOf(value))
	}
	if v.integer && f != math.Trunc(f) {
		return nil, issuef(nil, fmt.Sprintf("expected integer, got %v", f))
	}
	return f, nil
}

// Number accepts JSON numbers and returns them as float64.
func Number() Validator { return numberValidator{} }

// Integer accepts JSON numbers without a fractional part.
func Integer() Validator { return numberValidator{integer: true} }

type boolValidator struct{}

func (boolValidator) Validate(value any) (any, error) {
	b, ok := value.(bool)
	if !ok {
		return nil, issuef(nil, "expected boolean, got "+kindOf(value))
	}
	return b, nil
}

// Bool accepts boolean values.
func Bool() Validator { return boolValidator{} }

type voidValidator struct{}

func (voidValidator) Validate(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Struct && rv.NumField() == 0 {
		return value, nil
	}
	return nil, issuef(nil, "expected no content, got "+kindOf(value))
}

// Void accepts nil and empty struct markers.
func Void() Validator { return voidValidator{} }

type optional struct{ inner Validator }

func (o optional) Validate(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return Run(o.inner, value)
}

// Optional accepts nil, otherwise delegates to v.
func Optional(v Validator) Validator { return optional{inner: v} }

type enum struct{ values []string }

func (e enum) Validate(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, issuef(nil, "expected string, got "+kindOf(value))
	}
	for _, allowed := range e.values {
		if s == allowed {
			return s, nil
		}
	}
	return nil, issuef(nil, fmt.Sprintf("must be one of: %v", e.values))
}

// Enum accepts one of the listed strings.
func Enum(values ...string) Validator { return enum{values: values} }

// kindOf names the JSON kind of a decoded value for messages.
func kindOf(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return reflect.TypeOf(value).String()
}
