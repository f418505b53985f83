package callpath

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/broady/callpath/schema"
	"github.com/broady/callpath/testutil"
)

type user struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

func newTestClient(t *testing.T, reg Registry, tr *testutil.Transport) *Client {
	t.Helper()
	c, err := New("http://api.test", reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c.WithFetcher(tr)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, base := range []string{"", "/relative", "http://h/?q=1", "::"} {
		if _, err := New(base, Registry{}); err == nil {
			t.Errorf("New(%q): expected error", base)
		}
	}
}

func TestCall_JSONSuccess(t *testing.T) {
	tr := testutil.NewTransport(testutil.JSON(200, map[string]any{"id": "42", "name": "Ada"}))
	c := newTestClient(t, Registry{
		"users.show": {Method: GET, Path: "/users/:id", Response: JSON(schema.Struct[user]())},
	}, tr)

	res, err := c.Path("users").Param("id", "42").Get(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Err != nil {
		t.Fatalf("unexpected result error: %v", res.Err)
	}
	u, ok := res.Data.(user)
	if !ok || u.Name != "Ada" {
		t.Errorf("unexpected data %#v", res.Data)
	}
	if res.Status() != 200 {
		t.Errorf("unexpected status %d", res.Status())
	}

	req := tr.Last()
	if req.Method != "GET" || req.URL.String() != "http://api.test/users/42" {
		t.Errorf("unexpected request %s %s", req.Method, req.URL)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("expected default json content type, got %q", got)
	}
	call, ok := CallFromContext(req.Context)
	if !ok || call.Key != "users.show" || call.Path != "/users/:id" {
		t.Errorf("expected call context on request, got %v", call)
	}
}

func TestCall_ErrorStatusIsResult(t *testing.T) {
	tr := testutil.NewTransport(testutil.JSON(404, map[string]any{"message": "missing"}))
	c := newTestClient(t, Registry{"a": {Method: GET, Path: "/a", Response: JSON(nil)}}, tr)

	res, err := c.Path("a").Get(context.Background(), nil)
	if err != nil {
		t.Fatalf("non-2xx must not be returned as an error, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(res.Err, &apiErr) {
		t.Fatalf("expected APIError, got %T", res.Err)
	}
	if apiErr.Status != 404 || apiErr.Code != CodeNotFound || apiErr.Message != "missing" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if apiErr.Call.Key != "a" {
		t.Errorf("expected call on error, got %v", apiErr.Call)
	}
	if res.Response == nil || res.Response.StatusCode != 404 {
		t.Error("expected response on result")
	}
	if _, err := res.Unwrap(); !errors.As(err, &apiErr) {
		t.Errorf("Unwrap should surface the APIError, got %v", err)
	}
}

func TestCall_ErrorBodies(t *testing.T) {
	tests := []struct {
		name      string
		responder testutil.Responder
		message   string
		code      ErrorCode
	}{
		{"nested error", testutil.JSON(400, map[string]any{"error": map[string]any{"code": "invalid_argument", "message": "bad id"}}), "bad id", CodeInvalidArgument},
		{"string error", testutil.JSON(409, map[string]any{"error": "taken"}), "taken", CodeConflict},
		{"mock envelope code wins", testutil.JSON(400, map[string]any{"error": map[string]any{"code": "already_exists", "message": "dup"}}), "dup", CodeAlreadyExists},
		{"text", testutil.Text(503, "  down for maintenance \n"), "down for maintenance", CodeUnavailable},
		{"empty", testutil.Raw(500, "", ""), "Internal Server Error", CodeInternal},
		{"json without message", testutil.JSON(401, []int{1}), "Unauthorized", CodeUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := testutil.NewTransport(tt.responder)
			c := newTestClient(t, Registry{"a": {Method: GET, Path: "/a", Response: JSON(nil)}}, tr)

			res, err := c.Path("a").Get(context.Background(), nil)
			if err != nil {
				t.Fatal(err)
			}
			var apiErr *APIError
			if !errors.As(res.Err, &apiErr) {
				t.Fatalf("expected APIError, got %v", res.Err)
			}
			if apiErr.Message != tt.message {
				t.Errorf("message = %q, want %q", apiErr.Message, tt.message)
			}
			if apiErr.Code != tt.code {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.code)
			}
		})
	}
}

func TestCall_TransportFailureIsNetworkError(t *testing.T) {
	tr := testutil.NewTransport(testutil.Fail(errors.New("TypeError: fetch failed")))
	c := newTestClient(t, Registry{"a": {Method: GET, Path: "/a", Response: JSON(nil)}}, tr)

	res, err := c.Path("a").Get(context.Background(), nil)
	if res != nil {
		t.Errorf("expected no result, got %+v", res)
	}
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if netErr.Timeout {
		t.Error("plain failure should not be a timeout")
	}
	if !strings.Contains(err.Error(), "fetch failed") {
		t.Errorf("expected cause in message, got %q", err)
	}
}

func TestCall_CanceledIsTimeout(t *testing.T) {
	tr := testutil.NewTransport(testutil.JSON(200, nil))
	c := newTestClient(t, Registry{"a": {Method: GET, Path: "/a", Response: JSON(nil)}}, tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Path("a").Get(ctx, nil)
	var netErr *NetworkError
	if !errors.As(err, &netErr) || !netErr.Timeout {
		t.Fatalf("expected timeout NetworkError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestCall_DeadlineIsTimeout(t *testing.T) {
	slow := func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}
	c := newTestClient(t, Registry{"a": {Method: GET, Path: "/a", Response: JSON(nil)}}, testutil.NewTransport(slow))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Path("a").Get(ctx, nil)
	var netErr *NetworkError
	if !errors.As(err, &netErr) || !netErr.Timeout {
		t.Fatalf("expected timeout NetworkError, got %v", err)
	}
}

func TestCall_ResponseValidation(t *testing.T) {
	tr := testutil.NewTransport(testutil.Raw(200, "application/json", `[{"id":123,"name":"John"}]`))
	c := newTestClient(t, Registry{
		"users.list": {Method: GET, Path: "/users", Response: JSON(schema.Array(schema.Object(schema.Fields{"id": schema.String()})))},
	}, tr)

	res, err := c.Path("users").Get(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	var vErr *ValidationError
	if !errors.As(res.Err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", res.Err)
	}
	if len(vErr.Issues) != 1 || vErr.Issues[0].String() != "0.id: expected string, got number" {
		t.Errorf("unexpected issues %v", vErr.Issues)
	}
	var apiErr *APIError
	if !errors.As(res.Err, &apiErr) || apiErr.Status != 200 {
		t.Errorf("ValidationError should match APIError, got %v", apiErr)
	}
}

func TestCall_ParseFailure(t *testing.T) {
	tr := testutil.NewTransport(testutil.Raw(200, "application/json", `{not json`))
	c := newTestClient(t, Registry{"a": {Method: GET, Path: "/a", Response: JSON(nil)}}, tr)

	res, err := c.Path("a").Get(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	var apiErr *APIError
	if !errors.As(res.Err, &apiErr) || apiErr.Message != "parse failure" {
		t.Fatalf("expected parse failure, got %v", res.Err)
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(res.Err, &syntaxErr) {
		t.Errorf("expected json cause, got %v", apiErr.Err)
	}
}

func TestCall_DecodeByShape(t *testing.T) {
	tests := []struct {
		name      string
		response  Response
		responder testutil.Responder
		want      any
	}{
		{"text kind", Text(schema.String()), testutil.Raw(200, "application/octet-stream", "hi"), "hi"},
		{"text content type", JSON(nil), testutil.Text(200, "plain"), "plain"},
		{"no content kind", NoContent(), testutil.Raw(200, "application/json", "ignored"), Empty{}},
		{"204", JSON(nil), testutil.Raw(204, "", ""), Empty{}},
		{"json", JSON(nil), testutil.Raw(200, "application/json", `{"a":1}`), map[string]any{"a": 1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := testutil.NewTransport(tt.responder)
			c := newTestClient(t, Registry{"a": {Method: POST, Path: "/a", Response: tt.response}}, tr)

			v, err := Unwrap(c.Path("a").Post(context.Background(), nil))
			if err != nil {
				t.Fatal(err)
			}
			if m, ok := tt.want.(map[string]any); ok {
				got, _ := v.(map[string]any)
				if got["a"] != m["a"] {
					t.Errorf("got %v, want %v", v, tt.want)
				}
				return
			}
			if v != tt.want {
				t.Errorf("got %#v, want %#v", v, tt.want)
			}
		})
	}
}

func TestCall_RequestValidation(t *testing.T) {
	tr := testutil.NewTransport()
	c := newTestClient(t, Registry{
		"users.create": {Method: POST, Path: "/users", Input: Input{JSON: schema.Struct[user]()}, Response: JSON(nil)},
	}, tr)

	res, err := c.Path("users").Post(context.Background(), &Args{JSON: map[string]any{"name": "x"}})
	if err != nil {
		t.Fatal(err)
	}
	var vErr *ValidationError
	if !errors.As(res.Err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", res.Err)
	}
	if vErr.Code != CodeInvalidArgument || vErr.Status != 0 {
		t.Errorf("unexpected error %+v", vErr)
	}
	if res.Response != nil {
		t.Error("expected no response for request-side validation failure")
	}
	if len(tr.Requests()) != 0 {
		t.Error("nothing should be sent when request data is invalid")
	}
}

func TestCall_ParamAndQueryValidation(t *testing.T) {
	tr := testutil.NewTransport().Always(testutil.JSON(200, nil))
	c := newTestClient(t, Registry{
		"a": {
			Method: GET,
			Path:   "/items/:id",
			Input: Input{
				Param: schema.Object(schema.Fields{"id": schema.Enum("1", "2")}),
				Query: schema.Object(schema.Fields{"limit": schema.Number()}),
			},
			Response: JSON(nil),
		},
	}, tr)
	ctx := context.Background()

	res, _ := c.Path("items").Param("id", "3").Get(ctx, nil)
	var vErr *ValidationError
	if !errors.As(res.Err, &vErr) || vErr.Message != "invalid path parameters" {
		t.Errorf("expected param validation error, got %v", res.Err)
	}

	res, _ = c.Path("items").Param("id", "1").Get(ctx, &Args{Query: map[string]any{"limit": "ten"}})
	if !errors.As(res.Err, &vErr) || vErr.Message != "invalid query" {
		t.Errorf("expected query validation error, got %v", res.Err)
	}

	res, _ = c.Path("items").Param("id", "1").Get(ctx, &Args{Query: map[string]any{"limit": 10}})
	if res.Err != nil {
		t.Fatalf("unexpected error %v", res.Err)
	}
	if got := tr.Last().URL.RawQuery; got != "limit=10" {
		t.Errorf("unexpected query %q", got)
	}
}

func TestCall_Preconditions(t *testing.T) {
	tr := testutil.NewTransport()
	c := newTestClient(t, Registry{
		"get":  {Method: GET, Path: "/r/:id", Response: JSON(nil)},
		"post": {Method: POST, Path: "/r", Response: JSON(nil)},
	}, tr)
	ctx := context.Background()

	if _, err := c.Invoke(ctx, "get", nil, nil); !errors.Is(err, ErrMissingParam) {
		t.Errorf("expected ErrMissingParam, got %v", err)
	}
	if _, err := c.Invoke(ctx, "get", map[string]string{"id": "1"}, &Args{JSON: 1}); !errors.Is(err, ErrBodyNotAllowed) {
		t.Errorf("expected ErrBodyNotAllowed, got %v", err)
	}
	if _, err := c.Invoke(ctx, "post", nil, &Args{JSON: 1, Form: map[string]any{}}); !errors.Is(err, ErrConflictingBody) {
		t.Errorf("expected ErrConflictingBody, got %v", err)
	}
	if _, err := c.Invoke(ctx, "nope", nil, nil); !errors.Is(err, ErrUnknownRoute) {
		t.Errorf("expected ErrUnknownRoute, got %v", err)
	}
	if len(tr.Requests()) != 0 {
		t.Error("no request should be sent on precondition failures")
	}
}

func TestCall_ArgsParams(t *testing.T) {
	tr := testutil.NewTransport().Always(testutil.JSON(200, nil))
	c := newTestClient(t, Registry{"a": {Method: GET, Path: "/orgs/:org/repos/:repo", Response: JSON(nil)}}, tr)
	ctx := context.Background()

	if _, err := c.Invoke(ctx, "a", map[string]string{"org": "go"}, &Args{Params: map[string]string{"org": "ignored", "repo": "x"}}); err != nil {
		t.Fatal(err)
	}
	if got := tr.Last().URL.Path; got != "/orgs/go/repos/x" {
		t.Errorf("cursor-bound values should win, got %s", got)
	}
}

func TestCall_JSONBodyAndHeaders(t *testing.T) {
	tr := testutil.NewTransport(testutil.JSON(201, map[string]any{"id": "1"}))
	c := newTestClient(t, Registry{
		"users.create": {Method: POST, Path: "/users", Prefix: "api/v1/", Response: JSON(nil)},
	}, tr)
	c.WithHeader("X-Client", "default").WithHeader("X-Team", "core")

	_, err := c.Path("users").Post(context.Background(), &Args{
		JSON:    map[string]any{"name": "Ada"},
		Headers: http.Header{"x-client": {"per-call"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	req := tr.Last()
	if req.URL.String() != "http://api.test/api/v1/users" {
		t.Errorf("unexpected url %s", req.URL)
	}
	if string(req.Body) != `{"name":"Ada"}` {
		t.Errorf("unexpected body %s", req.Body)
	}
	if got := req.Header.Get("X-Client"); got != "per-call" {
		t.Errorf("per-call header should win, got %q", got)
	}
	if got := req.Header.Get("X-Team"); got != "core" {
		t.Errorf("expected client default header, got %q", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("unexpected content type %q", got)
	}
}

func TestCall_MultipartForm(t *testing.T) {
	tr := testutil.NewTransport(testutil.JSON(200, nil))
	c := newTestClient(t, Registry{"upload": {Method: POST, Path: "/upload", Response: JSON(nil)}}, tr)

	_, err := c.Path("upload").Post(context.Background(), &Args{Form: map[string]any{
		"title": "report",
		"tags":  []string{"a", "b"},
		"file":  FormFile{Name: "r.json", Data: []byte(`{"ok":true}`)},
	}})
	if err != nil {
		t.Fatal(err)
	}

	req := tr.Last()
	mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("unexpected content type %q", req.Header.Get("Content-Type"))
	}

	form, err := multipart.NewReader(strings.NewReader(string(req.Body)), params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	if got := form.Value["title"]; len(got) != 1 || got[0] != "report" {
		t.Errorf("unexpected title %v", got)
	}
	if got := form.Value["tags"]; len(got) != 2 || got[1] != "b" {
		t.Errorf("unexpected tags %v", got)
	}
	files := form.File["file"]
	if len(files) != 1 || files[0].Filename != "r.json" {
		t.Fatalf("unexpected files %v", files)
	}
	if ct := files[0].Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected sniffed json content type, got %q", ct)
	}
}

func TestCall_InterceptorOrder(t *testing.T) {
	tr := testutil.NewTransport(testutil.JSON(200, nil))
	c := newTestClient(t, Registry{"a": {Method: GET, Path: "/a", Response: JSON(nil)}}, tr)

	var order []string
	c.Requests.Add(func(_ context.Context, _ *CallContext, req *RequestOptions) (*RequestOptions, error) {
		order = append(order, "global-request")
		req.Header.Set("X-Order", req.Header.Get("X-Order")+"g")
		return nil, nil
	})
	c.Responses.Add(func(_ context.Context, _ *CallContext, resp *http.Response) (*http.Response, error) {
		order = append(order, "global-response")
		return nil, nil
	})

	_, err := c.Path("a").Get(context.Background(), &Args{
		OnRequest: func(_ context.Context, _ *CallContext, req *RequestOptions) (*RequestOptions, error) {
			order = append(order, "local-request")
			req.Header.Set("X-Order", "l")
			return nil, nil
		},
		OnResponse: func(_ context.Context, _ *CallContext, resp *http.Response) (*http.Response, error) {
			order = append(order, "local-response")
			return nil, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"local-request", "global-request", "local-response", "global-response"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
	if got := tr.Last().Header.Get("X-Order"); got != "lg" {
		t.Errorf("expected local then global, got %q", got)
	}
}

func TestCall_InterceptorRewritesURL(t *testing.T) {
	tr := testutil.NewTransport(testutil.JSON(200, nil))
	c := newTestClient(t, Registry{"a": {Method: GET, Path: "/a", Response: JSON(nil)}}, tr)
	c.Requests.Add(func(_ context.Context, _ *CallContext, req *RequestOptions) (*RequestOptions, error) {
		u := *req.URL
		u.Host = "other.test"
		return &RequestOptions{Method: req.Method, URL: &u, Header: req.Header}, nil
	})

	if _, err := c.Path("a").Get(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if got := tr.Last().URL.Host; got != "other.test" {
		t.Errorf("expected rewritten host, got %s", got)
	}
}

func TestCall_ResponseReplacement(t *testing.T) {
	original := testutil.ChunkedBody(`{"message":"unauthorized"}`)
	tr := testutil.NewTransport(testutil.Respond(401, "application/json", original))
	c := newTestClient(t, Registry{"a": {Method: GET, Path: "/a", Response: JSON(nil)}}, tr)

	c.Responses.Add(func(_ context.Context, _ *CallContext, resp *http.Response) (*http.Response, error) {
		if resp.StatusCode != http.StatusOK {
			t.Errorf("global interceptor should see the replaced response, got %d", resp.StatusCode)
		}
		return nil, nil
	})

	res, err := c.Path("a").Get(context.Background(), &Args{
		OnResponse: func(_ context.Context, _ *CallContext, resp *http.Response) (*http.Response, error) {
			if resp.StatusCode != http.StatusUnauthorized {
				return nil, nil
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": {"application/json"}},
				Body:       io.NopCloser(strings.NewReader(`{"refreshed":true}`)),
			}, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	m, _ := res.Data.(map[string]any)
	if m["refreshed"] != true {
		t.Errorf("expected replaced body, got %v", res.Data)
	}
	if !original.Closed() {
		t.Error("replaced response body should be closed")
	}
}

func TestCall_InterceptorError(t *testing.T) {
	body := testutil.ChunkedBody("{}")
	tr := testutil.NewTransport(testutil.Respond(200, "application/json", body))
	c := newTestClient(t, Registry{"a": {Method: GET, Path: "/a", Response: JSON(nil)}}, tr)

	denied := errors.New("denied")
	c.Responses.Add(func(context.Context, *CallContext, *http.Response) (*http.Response, error) {
		return nil, denied
	})

	if _, err := c.Path("a").Get(context.Background(), nil); !errors.Is(err, denied) {
		t.Errorf("expected interceptor error, got %v", err)
	}
	if !body.Closed() {
		t.Error("body should be closed when an interceptor fails")
	}
}

func TestCall_FetcherOverride(t *testing.T) {
	clientTransport := testutil.NewTransport()
	callTransport := testutil.NewTransport(testutil.JSON(200, "override"))
	c := newTestClient(t, Registry{"a": {Method: GET, Path: "/a", Response: JSON(nil)}}, clientTransport)

	v, err := As[string](c.Path("a").Get(context.Background(), &Args{Fetcher: callTransport}))
	if err != nil {
		t.Fatal(err)
	}
	if v != "override" {
		t.Errorf("unexpected value %q", v)
	}
	if len(clientTransport.Requests()) != 0 {
		t.Error("client transport should not be used")
	}
}

func TestAs_WrongType(t *testing.T) {
	if _, err := As[int](&Result{Data: "x"}, nil); err == nil {
		t.Error("expected type error")
	}
	boom := errors.New("boom")
	if _, err := As[int](nil, boom); !errors.Is(err, boom) {
		t.Errorf("expected call error, got %v", err)
	}
}
