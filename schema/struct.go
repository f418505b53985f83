package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names so issue paths match the wire shape.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// StructValidator decodes values into T and validates `validate` struct tags.
type StructValidator[T any] struct{}

// Struct returns a validator that converts a decoded JSON value into T and
// runs go-playground/validator on it. Slices and arrays of structs are
// validated element by element.
//
//	type User struct {
//	    ID   string `json:"id" validate:"required"`
//	    Name string `json:"name"`
//	}
//	users := schema.Struct[[]User]()
func Struct[T any]() *StructValidator[T] {
	return &StructValidator[T]{}
}

// Validate implements [Validator].
func (s *StructValidator[T]) Validate(value any) (any, error) {
	if typed, ok := value.(T); ok {
		if err := checkStructs(reflect.ValueOf(typed), nil); err != nil {
			return nil, err
		}
		return typed, nil
	}

	data, err := rawJSON(value)
	if err != nil {
		return nil, issuef(nil, err.Error())
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, decodeIssues(err)
	}
	if err := checkStructs(reflect.ValueOf(out), nil); err != nil {
		return nil, err
	}
	return out, nil
}

// JSONSchema reflects T into a JSON Schema document.
func (s *StructValidator[T]) JSONSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	return r.Reflect(new(T))
}

func rawJSON(value any) ([]byte, error) {
	switch v := value.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cannot re-encode value: %w", err)
	}
	return data, nil
}

func checkStructs(rv reflect.Value, path []string) error {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		err := validate.Struct(rv.Interface())
		if err == nil {
			return nil
		}
		var valErrs validator.ValidationErrors
		if !errors.As(err, &valErrs) {
			return issuef(path, err.Error())
		}
		issues := make(Issues, 0, len(valErrs))
		for _, fe := range valErrs {
			issues = append(issues, Issue{
				Path:    fieldPath(path, fe.Namespace()),
				Message: formatFieldError(fe),
			})
		}
		return issues
	case reflect.Slice, reflect.Array:
		var issues Issues
		for i := 0; i < rv.Len(); i++ {
			elemPath := append(append([]string{}, path...), strconv.Itoa(i))
			if err := checkStructs(rv.Index(i), elemPath); err != nil {
				issues = append(issues, IssuesOf(err)...)
			}
		}
		if len(issues) > 0 {
			return issues
		}
	}
	return nil
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(base []string, namespace string) []string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return append(append([]string{}, base...), parts...)
}

func decodeIssues(err error) Issues {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		var path []string
		if typeErr.Field != "" {
			path = strings.Split(typeErr.Field, ".")
		}
		return issuef(path, "expected "+jsonKind(typeErr.Type)+", got "+typeErr.Value)
	}
	return issuef(nil, err.Error())
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Struct, reflect.Map:
		return "object"
	}
	return t.String()
}

// formatFieldError converts a validator.FieldError to a human-readable message.
func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must have length %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
