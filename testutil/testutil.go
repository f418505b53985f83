// Package testutil provides testing helpers for callpath clients and the
// mock server. It imports neither, so any package can use it in tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

// RequestBuilder assembles a server-side test request.
type RequestBuilder struct {
	method string
	target string
	query  url.Values
	header http.Header
	body   []byte
}

// NewRequest starts a GET / request.
func NewRequest() *RequestBuilder {
	return &RequestBuilder{
		method: http.MethodGet,
		target: "/",
		query:  url.Values{},
		header: http.Header{},
	}
}

// Method sets the method and the request target.
func (b *RequestBuilder) Method(method, target string) *RequestBuilder {
	b.method, b.target = method, target
	return b
}

// GET is Method(http.MethodGet, target).
func (b *RequestBuilder) GET(target string) *RequestBuilder {
	return b.Method(http.MethodGet, target)
}

// POST is Method(http.MethodPost, target).
func (b *RequestBuilder) POST(target string) *RequestBuilder {
	return b.Method(http.MethodPost, target)
}

// WithJSON marshals v as the body. It panics if v cannot be encoded.
func (b *RequestBuilder) WithJSON(v any) *RequestBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		panic("testutil: marshal request: " + err.Error())
	}
	b.body = data
	b.header.Set("Content-Type", "application/json")
	return b
}

// WithBody sets a raw body without touching Content-Type.
func (b *RequestBuilder) WithBody(body string) *RequestBuilder {
	b.body = []byte(body)
	return b
}

// WithHeader sets a header, replacing earlier values.
func (b *RequestBuilder) WithHeader(key, value string) *RequestBuilder {
	b.header.Set(key, value)
	return b
}

// WithQuery appends a query value; repeated keys are kept.
func (b *RequestBuilder) WithQuery(key, value string) *RequestBuilder {
	b.query.Add(key, value)
	return b
}

// Build returns the request and a fresh recorder.
func (b *RequestBuilder) Build() (*http.Request, *httptest.ResponseRecorder) {
	target := b.target
	if len(b.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + b.query.Encode()
	}

	var body io.Reader
	if b.body != nil {
		body = bytes.NewReader(b.body)
	}
	req := httptest.NewRequest(b.method, target, body)
	for k, vs := range b.header {
		req.Header[k] = append([]string(nil), vs...)
	}
	return req, httptest.NewRecorder()
}

// Serve builds the request and serves it to h.
func (b *RequestBuilder) Serve(h http.Handler) *httptest.ResponseRecorder {
	req, w := b.Build()
	h.ServeHTTP(w, req)
	return w
}

// AssertStatus fails the test when the status differs.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Errorf("status = %d, want %d\nbody: %s", w.Code, want, w.Body.String())
	}
}

// AssertHeader fails the test when the header value differs.
func AssertHeader(t *testing.T, w *httptest.ResponseRecorder, key, want string) {
	t.Helper()
	if got := w.Header().Get(key); got != want {
		t.Errorf("header %s = %q, want %q", key, got, want)
	}
}

// AssertJSONResponse checks the content type and compares the body with
// want as decoded JSON, so formatting and key order do not matter.
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, want any) {
	t.Helper()

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	wantData, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal expected value: %v", err)
	}
	var expected, actual any
	if err := json.Unmarshal(wantData, &expected); err != nil {
		t.Fatalf("decode expected value: %v", err)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &actual); err != nil {
		t.Fatalf("body is not JSON: %v\nbody: %s", err, w.Body.String())
	}
	if !reflect.DeepEqual(expected, actual) {
		t.Errorf("body mismatch\nwant: %s\ngot:  %s", wantData, bytes.TrimSpace(w.Body.Bytes()))
	}
}

// ErrorResponse is the error object of a mock server error envelope.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// AssertJSONError decodes an {"error": {...}} envelope and checks its code.
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, wantCode string) *ErrorResponse {
	t.Helper()

	var envelope struct {
		Error *ErrorResponse `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil || envelope.Error == nil {
		t.Fatalf("no error envelope in body: %s", w.Body.String())
	}
	if envelope.Error.Code != wantCode {
		t.Errorf("error code = %q, want %q (message: %s)", envelope.Error.Code, wantCode, envelope.Error.Message)
	}
	return envelope.Error
}
