package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Responder produces the response to one request.
type Responder func(*http.Request) (*http.Response, error)

// RecordedRequest is a request seen by a Transport, with its body read.
type RecordedRequest struct {
	Method  string
	URL     *url.URL
	Header  http.Header
	Body    []byte
	Context context.Context
}

// Transport is a scripted transport. Each request is answered by the next
// queued Responder, or by the fallback once the queue is empty. Every
// request is recorded.
//
// Transport implements both the client's Do method and http.RoundTripper.
type Transport struct {
	mu       sync.Mutex
	queue    []Responder
	fallback Responder
	requests []*RecordedRequest
}

// NewTransport returns a transport answering with responders in order.
func NewTransport(responders ...Responder) *Transport {
	return &Transport{queue: responders}
}

// Push queues more responders.
func (t *Transport) Push(responders ...Responder) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, responders...)
	return t
}

// Always answers every request without a queued responder with r.
func (t *Transport) Always(r Responder) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fallback = r
	return t
}

// Do records req and answers it.
func (t *Transport) Do(req *http.Request) (*http.Response, error) {
	rec := &RecordedRequest{
		Method:  req.Method,
		URL:     req.URL,
		Header:  req.Header.Clone(),
		Context: req.Context(),
	}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		rec.Body = body
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	t.mu.Lock()
	t.requests = append(t.requests, rec)
	var next Responder
	if len(t.queue) > 0 {
		next, t.queue = t.queue[0], t.queue[1:]
	} else {
		next = t.fallback
	}
	t.mu.Unlock()

	if next == nil {
		return nil, fmt.Errorf("testutil: no response scripted for %s %s", req.Method, req.URL)
	}
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	resp, err := next(req)
	if resp != nil && resp.Request == nil {
		resp.Request = req
	}
	return resp, err
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.Do(req)
}

// Requests returns the recorded requests in arrival order.
func (t *Transport) Requests() []*RecordedRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*RecordedRequest(nil), t.requests...)
}

// Last returns the most recent request, or nil.
func (t *Transport) Last() *RecordedRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.requests) == 0 {
		return nil
	}
	return t.requests[len(t.requests)-1]
}

// Respond returns a responder with the given status, content type and body.
func Respond(status int, contentType string, body io.ReadCloser) Responder {
	return func(*http.Request) (*http.Response, error) {
		h := make(http.Header)
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		return &http.Response{
			Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
			StatusCode: status,
			Header:     h,
			Body:       body,
		}, nil
	}
}

// JSON returns a responder that sends v encoded as JSON.
// Every call gets a fresh body.
func JSON(status int, v any) Responder {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal response: %v", err))
	}
	return Raw(status, "application/json", string(data))
}

// Text returns a responder that sends s as text/plain.
func Text(status int, s string) Responder {
	return Raw(status, "text/plain; charset=utf-8", s)
}

// Raw returns a responder that sends body with the given content type.
// Every call gets a fresh body.
func Raw(status int, contentType, body string) Responder {
	return func(req *http.Request) (*http.Response, error) {
		return Respond(status, contentType, io.NopCloser(strings.NewReader(body)))(req)
	}
}

// Fail returns a responder that fails with err.
func Fail(err error) Responder {
	return func(*http.Request) (*http.Response, error) {
		return nil, err
	}
}

// ChunkedReader delivers a body as fixed chunks, one per Read call, and
// remembers whether it was closed.
type ChunkedReader struct {
	mu     sync.Mutex
	chunks [][]byte
	closed bool
}

// ChunkedBody returns a body delivering chunks one Read at a time.
func ChunkedBody(chunks ...string) *ChunkedReader {
	r := &ChunkedReader{}
	for _, c := range chunks {
		r.chunks = append(r.chunks, []byte(c))
	}
	return r
}

var errReadAfterClose = errors.New("testutil: read after close")

func (r *ChunkedReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, errReadAfterClose
	}
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

// Close implements io.Closer.
func (r *ChunkedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed reports whether Close was called.
func (r *ChunkedReader) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
