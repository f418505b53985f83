package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"

	"github.com/elnormous/contenttype"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"

	"github.com/broady/callpath"
)

var (
	validate      = validator.New()
	schemaDecoder = schema.NewDecoder()
)

func init() {
	schemaDecoder.IgnoreUnknownKeys(true)
	// The client encodes struct queries by json tag; decode them the same way.
	schemaDecoder.SetAliasTag("json")
}

// Request is one decoded incoming call.
type Request struct {
	Call     *callpath.CallContext
	Endpoint callpath.Endpoint
	// Params holds the path values by parameter name.
	Params map[string]string
	Query  url.Values
	Header http.Header
	// Body is the raw request body. It is empty for multipart requests,
	// whose parts are in Form.
	Body []byte
	Form *multipart.Form
}

// DecodeQuery decodes the query string into dst, a pointer to a struct,
// and runs its validate tags.
func (r *Request) DecodeQuery(dst any) error {
	if err := schemaDecoder.Decode(dst, r.Query); err != nil {
		return Errorf(callpath.CodeInvalidArgument, "failed to decode query: %v", err)
	}
	return validateStruct(dst)
}

// DecodeJSON decodes the JSON body into dst and runs its validate tags.
// An empty body leaves dst unchanged.
func (r *Request) DecodeJSON(dst any) error {
	if len(r.Body) == 0 {
		return validateStruct(dst)
	}
	if err := json.Unmarshal(r.Body, dst); err != nil {
		return Errorf(callpath.CodeInvalidArgument, "failed to decode body: %v", err)
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	return validate.Struct(v)
}

// HandlerFunc produces the result of a scalar endpoint. The result is
// written as the endpoint's declared response kind.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// Interceptor wraps handler execution. Stream endpoints run interceptors
// once during setup, with a handler that returns a nil result.
//
//	func auth(ctx context.Context, req *mock.Request, next mock.HandlerFunc) (any, error) {
//	    if req.Header.Get("Authorization") == "" {
//	        return nil, mock.NewError(callpath.CodeUnauthenticated, "missing token")
//	    }
//	    return next(ctx, req)
//	}
type Interceptor func(ctx context.Context, req *Request, handler HandlerFunc) (any, error)

// chainInterceptors combines multiple interceptors into a single handler.
// The first interceptor in the slice is the outer-most one (runs first).
func chainInterceptors(interceptors []Interceptor, handler HandlerFunc) HandlerFunc {
	chain := handler
	for i := len(interceptors) - 1; i >= 0; i-- {
		current := interceptors[i]
		next := chain
		chain = func(ctx context.Context, req *Request) (any, error) {
			return current(ctx, req, next)
		}
	}
	return chain
}

// Fixture returns a handler that always answers with v.
func Fixture(v any) HandlerFunc {
	return func(context.Context, *Request) (any, error) {
		return v, nil
	}
}

// notImplemented answers endpoints without a registered handler.
func notImplemented(_ context.Context, req *Request) (any, error) {
	return nil, Errorf(callpath.CodeNotImplemented, "no handler for %s", req.Call.Key)
}

// route is one endpoint bound to the mux.
type route struct {
	server *Server
	route  *callpath.Route
}

func (rt *route) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := rt.server
	call := rt.route.Call()
	ctx := newContext(r.Context(), w, r, call)

	req, err := s.decodeRequest(w, r, rt.route)
	if err != nil {
		writeError(w, s.transformError(err), s.log())
		return
	}

	shape := rt.route.Endpoint.Response
	if shape.Kind.IsStream() {
		rt.serveStream(ctx, w, r, req)
		return
	}

	h, ok := s.handler(rt.route.Key)
	if !ok {
		h = notImplemented
	}
	res, err := chainInterceptors(s.interceptors, h)(ctx, req)
	if err != nil {
		writeError(w, s.transformError(err), s.log())
		return
	}
	if err := writeResult(w, shape, res); err != nil {
		// Response may be partially written, nothing we can do.
		s.log().Error("failed to encode response",
			"endpoint", call.String(),
			"error", err)
	}
}

// decodeRequest reads the body and checks the path values and JSON body
// against the endpoint's validators.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, rt *callpath.Route) (*Request, error) {
	req := &Request{
		Call:     rt.Call(),
		Endpoint: rt.Endpoint,
		Params:   make(map[string]string),
		Query:    r.URL.Query(),
		Header:   r.Header,
	}
	for _, name := range rt.Template.Params() {
		req.Params[name] = r.PathValue(name)
	}

	if r.Body != nil && r.Body != http.NoBody {
		if s.maxRequestBodySize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxRequestBodySize))
		}
		if isMultipart(r) {
			if err := r.ParseMultipartForm(multipartMemory); err != nil {
				return nil, Errorf(callpath.CodeInvalidArgument, "failed to parse form: %v", err)
			}
			req.Form = r.MultipartForm
		} else {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					return nil, Errorf(callpath.CodeResourceExhausted, "request body exceeds %d bytes", tooLarge.Limit)
				}
				return nil, Errorf(callpath.CodeInvalidArgument, "failed to read body: %v", err)
			}
			req.Body = body
		}
	}

	in := rt.Endpoint.Input
	if in.Param != nil {
		values := make(map[string]any, len(req.Params))
		for k, v := range req.Params {
			values[k] = v
		}
		if _, err := in.Param.Validate(values); err != nil {
			return nil, fmt.Errorf("invalid path parameters: %w", err)
		}
	}
	if in.JSON != nil && len(req.Body) > 0 {
		var v any
		if err := json.Unmarshal(req.Body, &v); err != nil {
			return nil, Errorf(callpath.CodeInvalidArgument, "failed to decode body: %v", err)
		}
		if _, err := in.JSON.Validate(v); err != nil {
			return nil, fmt.Errorf("invalid json body: %w", err)
		}
	}
	return req, nil
}

// multipartMemory is the part of a multipart body kept in memory; the
// rest spills to temporary files.
const multipartMemory = 8 << 20

var multipartMediaType = contenttype.NewMediaType("multipart/form-data")

func isMultipart(r *http.Request) bool {
	mt, err := contenttype.GetMediaType(r)
	return err == nil && mt.Type == multipartMediaType.Type && mt.Subtype == multipartMediaType.Subtype
}
