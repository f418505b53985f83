// Package schema provides the validation capability used by callpath
// endpoint descriptors.
//
// A [Validator] receives a decoded value (usually the result of
// json.Unmarshal into any) and returns either the accepted, possibly
// converted, value or an error. Validation failures are reported as
// [Issues] so callers can surface field-level messages:
//
//	user := schema.Object(map[string]schema.Validator{
//	    "id":   schema.String(),
//	    "name": schema.Optional(schema.String()),
//	})
//	data, err := user.Validate(map[string]any{"id": 123})
//	// err: id: expected string, got number
//
// For Go types, [Struct] decodes into T and runs go-playground/validator
// struct tags.
package schema

import (
	"errors"
	"strings"
)

// Validator checks a decoded value.
// On success it returns the accepted value, which may differ from the input
// (for example, [Struct] returns a T). On failure it returns an error,
// normally [Issues].
type Validator interface {
	Validate(value any) (any, error)
}

// Func adapts an ordinary function to the [Validator] interface.
type Func func(value any) (any, error)

// Validate calls f(value).
func (f Func) Validate(value any) (any, error) {
	return f(value)
}

// Issue is a single validation failure at a field path.
type Issue struct {
	Path    []string `json:"path,omitempty"`
	Message string   `json:"message"`
}

func (i Issue) String() string {
	if len(i.Path) == 0 {
		return i.Message
	}
	return strings.Join(i.Path, ".") + ": " + i.Message
}

// Issues is the error returned by validators in this package.
type Issues []Issue

func (is Issues) Error() string {
	msgs := make([]string, len(is))
	for i, issue := range is {
		msgs[i] = issue.String()
	}
	return strings.Join(msgs, "; ")
}

// IssuesOf converts a validation error into Issues.
// Errors that are not Issues become a single issue without a path.
func IssuesOf(err error) Issues {
	if err == nil {
		return nil
	}
	var is Issues
	if errors.As(err, &is) {
		return is
	}
	return Issues{{Message: err.Error()}}
}

// Run validates value with v. A nil validator accepts anything.
func Run(v Validator, value any) (any, error) {
	if v == nil {
		return value, nil
	}
	return v.Validate(value)
}

func issuef(path []string, msg string) Issues {
	return Issues{{Path: path, Message: msg}}
}

// prefix returns issues with seg prepended to every path.
func prefix(seg string, err error) Issues {
	is := IssuesOf(err)
	out := make(Issues, len(is))
	for i, issue := range is {
		path := make([]string, 0, len(issue.Path)+1)
		path = append(path, seg)
		path = append(path, issue.Path...)
		out[i] = Issue{Path: path, Message: issue.Message}
	}
	return out
}
