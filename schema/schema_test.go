package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestPrimitives(t *testing.T) {
	tests := []struct {
		name    string
		v       Validator
		input   any
		wantErr bool
	}{
		{"string ok", String(), "hello", false},
		{"string rejects number", String(), 1.0, true},
		{"number ok", Number(), 3.5, false},
		{"number from json.Number", Number(), json.Number("42"), false},
		{"number rejects string", Number(), "42", true},
		{"integer rejects fraction", Integer(), 1.5, true},
		{"integer ok", Integer(), 2.0, false},
		{"bool ok", Bool(), true, false},
		{"bool rejects null", Bool(), nil, true},
		{"void accepts nil", Void(), nil, false},
		{"void accepts empty struct", Void(), struct{}{}, false},
		{"void rejects value", Void(), "x", true},
		{"optional accepts nil", Optional(String()), nil, false},
		{"optional delegates", Optional(String()), 1.0, true},
		{"enum ok", Enum("a", "b"), "b", false},
		{"enum rejects", Enum("a", "b"), "c", true},
		{"any accepts", Any(), map[string]any{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.v.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestObject_IssuePaths(t *testing.T) {
	user := Object(Fields{
		"id":   String(),
		"name": Optional(String()),
	})

	_, err := user.Validate(map[string]any{"id": 123.0})
	if err == nil {
		t.Fatal("expected error")
	}

	var issues Issues
	if !errors.As(err, &issues) {
		t.Fatalf("expected Issues, got %T", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d: %v", len(issues), issues)
	}
	if got := strings.Join(issues[0].Path, "."); got != "id" {
		t.Errorf("expected path id, got %s", got)
	}
	if issues[0].Message != "expected string, got number" {
		t.Errorf("unexpected message: %s", issues[0].Message)
	}
}

func TestObject_PassesUnknownFields(t *testing.T) {
	out, err := Object(Fields{"a": Number()}).Validate(map[string]any{"a": 1.0, "extra": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := out.(map[string]any)
	if m["extra"] != "x" {
		t.Errorf("expected extra field to be kept, got %v", m)
	}

	if _, err := StrictObject(Fields{"a": Number()}).Validate(map[string]any{"a": 1.0, "extra": "x"}); err == nil {
		t.Error("expected strict object to reject unknown field")
	}
}

func TestArray_IndexedPaths(t *testing.T) {
	users := Array(Object(Fields{"id": String()}))

	var decoded any
	if err := json.Unmarshal([]byte(`[{"id":"a"},{"id":123}]`), &decoded); err != nil {
		t.Fatal(err)
	}

	_, err := users.Validate(decoded)
	issues := IssuesOf(err)
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %v", issues)
	}
	if got := issues[0].String(); got != "1.id: expected string, got number" {
		t.Errorf("unexpected issue: %s", got)
	}
}

type testUser struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

func TestStruct_DecodesAndValidates(t *testing.T) {
	v := Struct[testUser]()

	out, err := v.Validate(map[string]any{"id": "u1", "name": "John"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	user, ok := out.(testUser)
	if !ok {
		t.Fatalf("expected testUser, got %T", out)
	}
	if user.ID != "u1" || user.Name != "John" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestStruct_TagFailures(t *testing.T) {
	_, err := Struct[testUser]().Validate(map[string]any{"name": "John", "email": "nope"})
	issues := IssuesOf(err)
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %v", issues)
	}

	byPath := map[string]string{}
	for _, is := range issues {
		byPath[strings.Join(is.Path, ".")] = is.Message
	}
	if byPath["id"] != "required" {
		t.Errorf("expected id required, got %v", byPath)
	}
	if byPath["email"] != "must be a valid email address" {
		t.Errorf("expected email message, got %v", byPath)
	}
}

func TestStruct_TypeMismatch(t *testing.T) {
	var decoded any
	if err := json.Unmarshal([]byte(`[{"id":123,"name":"John"}]`), &decoded); err != nil {
		t.Fatal(err)
	}

	_, err := Struct[[]testUser]().Validate(decoded)
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
	issues := IssuesOf(err)
	if len(issues) == 0 || !strings.Contains(issues[0].Message, "expected string, got number") {
		t.Errorf("unexpected issues: %v", issues)
	}
}

func TestStruct_SliceElementPaths(t *testing.T) {
	_, err := Struct[[]testUser]().Validate(json.RawMessage(`[{"id":"a"},{"name":"b"}]`))
	issues := IssuesOf(err)
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %v", issues)
	}
	if got := strings.Join(issues[0].Path, "."); got != "1.id" {
		t.Errorf("expected path 1.id, got %s", got)
	}
}

func TestStruct_JSONSchema(t *testing.T) {
	s := Struct[testUser]().JSONSchema()
	if s == nil {
		t.Fatal("expected schema")
	}
	if s.Type != "object" {
		t.Errorf("expected object schema, got %q", s.Type)
	}
	if _, ok := s.Properties.Get("id"); !ok {
		t.Error("expected id property")
	}
}

func TestIssuesOf_PlainError(t *testing.T) {
	issues := IssuesOf(errors.New("boom"))
	if len(issues) != 1 || issues[0].Message != "boom" {
		t.Errorf("unexpected issues: %v", issues)
	}
	if IssuesOf(nil) != nil {
		t.Error("expected nil issues for nil error")
	}
}

func TestFunc(t *testing.T) {
	upper := Func(func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, Issues{{Message: "not a string"}}
		}
		return strings.ToUpper(s), nil
	})
	out, err := Run(upper, "abc")
	if err != nil || out != "ABC" {
		t.Errorf("got %v, %v", out, err)
	}
	if out, _ := Run(nil, 7); out != 7 {
		t.Errorf("nil validator should pass through, got %v", out)
	}
}
