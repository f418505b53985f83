package callpath

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/broady/callpath/schema"
)

// Method is an HTTP method supported by endpoint descriptors.
type Method string

const (
	GET    Method = "GET"
	POST   Method = "POST"
	PUT    Method = "PUT"
	PATCH  Method = "PATCH"
	DELETE Method = "DELETE"
)

// ParseMethod parses a method name case-insensitively.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case GET, POST, PUT, PATCH, DELETE:
		return m, nil
	}
	return "", fmt.Errorf("unsupported method %q", s)
}

// key is the method's name in the call tree key space.
func (m Method) key() string { return strings.ToLower(string(m)) }

// Input lists the validators for the data slots of a call.
// A nil validator leaves its slot unchecked. JSON and Form are mutually
// exclusive.
type Input struct {
	Query schema.Validator
	Param schema.Validator
	JSON  schema.Validator
	Form  schema.Validator
}

// ResponseKind tags the decode grammar of a response.
type ResponseKind int

const (
	KindJSON ResponseKind = iota
	KindText
	KindNoContent
	KindSSE
	KindNDJSON
	KindBinary
)

func (k ResponseKind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindText:
		return "text"
	case KindNoContent:
		return "none"
	case KindSSE:
		return "sse"
	case KindNDJSON:
		return "ndjson"
	case KindBinary:
		return "binary"
	}
	return fmt.Sprintf("ResponseKind(%d)", int(k))
}

// IsStream reports whether responses of this kind are decoded incrementally.
func (k ResponseKind) IsStream() bool {
	return k == KindSSE || k == KindNDJSON || k == KindBinary
}

// EventSchema describes one named SSE event.
type EventSchema struct {
	Schema schema.Validator
	// Text allows a payload that is not JSON to be passed to Schema as the
	// raw string.
	Text bool
}

// JSONEvent declares an SSE event whose data is JSON.
func JSONEvent(v schema.Validator) EventSchema { return EventSchema{Schema: v} }

// TextEvent declares an SSE event whose data may be plain text.
func TextEvent(v schema.Validator) EventSchema { return EventSchema{Schema: v, Text: true} }

// Response describes how a response body is decoded. Build it with one
// of the constructors; the kind is fixed at registration and dispatched
// once when the response is decoded.
type Response struct {
	Kind ResponseKind
	// Schema validates scalar bodies and NDJSON items.
	Schema schema.Validator
	// Events maps SSE event names to their schemas.
	Events map[string]EventSchema
	// ContentType is the Accept value for binary streams.
	ContentType string
}

// JSON declares a JSON body validated by v.
func JSON(v schema.Validator) Response { return Response{Kind: KindJSON, Schema: v} }

// Text declares a text body validated by v.
func Text(v schema.Validator) Response { return Response{Kind: KindText, Schema: v} }

// NoContent declares an endpoint without a response body.
func NoContent() Response { return Response{Kind: KindNoContent, Schema: schema.Void()} }

// SSE declares a Server-Sent Events stream.
func SSE(events map[string]EventSchema) Response { return Response{Kind: KindSSE, Events: events} }

// NDJSON declares a newline-delimited JSON stream whose items satisfy item.
func NDJSON(item schema.Validator) Response { return Response{Kind: KindNDJSON, Schema: item} }

// Binary declares a raw byte stream of the given content type.
func Binary(contentType string) Response {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Response{Kind: KindBinary, ContentType: contentType}
}

// accept is the Accept header sent for streaming kinds.
func (r Response) accept() string {
	switch r.Kind {
	case KindSSE:
		return "text/event-stream"
	case KindNDJSON:
		return "application/x-ndjson"
	case KindBinary:
		return r.ContentType
	}
	return ""
}

// Endpoint describes one API operation. It is treated as immutable once
// registered.
type Endpoint struct {
	Method   Method
	Path     string
	Input    Input
	Response Response
	// Prefix is prepended to the URL path. It does not affect the position
	// of the endpoint in the call tree.
	Prefix string
}

// Validate checks the descriptor.
func (e Endpoint) Validate() error {
	var errs []error
	method, err := ParseMethod(string(e.Method))
	if err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseTemplate(e.Path); err != nil {
		errs = append(errs, err)
	}
	if e.Input.JSON != nil && e.Input.Form != nil {
		errs = append(errs, ErrConflictingBody)
	}
	if method == GET && (e.Input.JSON != nil || e.Input.Form != nil) {
		errs = append(errs, ErrBodyNotAllowed)
	}
	if e.Response.Kind == KindSSE && len(e.Response.Events) == 0 {
		errs = append(errs, errors.New("sse response declares no events"))
	}
	if e.Prefix != "" && strings.ContainsAny(e.Prefix, "?#") {
		errs = append(errs, fmt.Errorf("invalid prefix %q", e.Prefix))
	}
	return errors.Join(errs...)
}

// Registry maps stable keys to endpoint descriptors.
type Registry map[string]Endpoint

// Keys returns the registry keys in sorted order.
func (r Registry) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks every descriptor and joins the failures.
func (r Registry) Validate() error {
	var errs []error
	for _, key := range r.Keys() {
		if err := r[key].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("endpoint %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
