package callpath

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/broady/callpath/schema"
)

// Args are the per-call inputs. The zero value, or a nil *Args, makes a
// call without data.
type Args struct {
	// Query is serialized with [EncodeQuery].
	Query any
	// Params supplies path values the cursor did not bind. Values bound
	// through the cursor take precedence.
	Params map[string]string
	// JSON is marshaled as the request body. JSON and Form are mutually
	// exclusive and not allowed on GET.
	JSON any
	// Form is sent as a multipart body. Values may be scalars, slices or
	// [FormFile].
	Form map[string]any
	// Headers overlay the client's default headers.
	Headers http.Header

	// OnRequest and OnResponse run before the client's interceptors.
	OnRequest  Interceptor[RequestOptions]
	OnResponse Interceptor[http.Response]

	// Fetcher replaces the client's transport for this call.
	Fetcher Fetcher
}

// RequestOptions is the outgoing request as seen by request interceptors.
type RequestOptions struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// do runs the request pipeline for one call.
func (c *Client) do(ctx context.Context, route *Route, bound map[string]string, args *Args) (*Result, error) {
	if args == nil {
		args = &Args{}
	}
	ep := route.Endpoint
	call := route.Call()
	logger := c.log()

	params := make(map[string]string, len(args.Params)+len(bound))
	maps.Copy(params, args.Params)
	maps.Copy(params, bound)
	path, err := route.Template.Expand(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", call, err)
	}

	if args.JSON != nil && args.Form != nil {
		return nil, fmt.Errorf("%s: %w", call, ErrConflictingBody)
	}
	if ep.Method == GET && (args.JSON != nil || args.Form != nil) {
		return nil, fmt.Errorf("%s: %w", call, ErrBodyNotAllowed)
	}

	if verr := validateInput(call, route, params, args); verr != nil {
		logger.DebugContext(ctx, "request validation failed",
			slog.String("call", call.String()),
			slog.Any("error", verr))
		return &Result{Err: verr}, nil
	}

	u, err := url.Parse(c.baseURL + ep.Prefix + path)
	if err != nil {
		return nil, fmt.Errorf("%s: build url: %w", call, err)
	}
	query, err := EncodeQuery(args.Query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", call, err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	header := http.Header{"Content-Type": {"application/json"}}
	overlayHeader(header, c.header)
	overlayHeader(header, args.Headers)
	if ep.Response.Kind.IsStream() {
		header.Set("Accept", ep.Response.accept())
	}

	var body []byte
	switch {
	case args.JSON != nil:
		if body, err = encodeJSON(args.JSON); err != nil {
			return nil, fmt.Errorf("%s: %w", call, err)
		}
	case args.Form != nil:
		var contentType string
		if body, contentType, err = encodeForm(args.Form); err != nil {
			return nil, fmt.Errorf("%s: %w", call, err)
		}
		// The multipart writer owns the boundary.
		header.Set("Content-Type", contentType)
	}

	opts := &RequestOptions{Method: string(ep.Method), URL: u, Header: header, Body: body}
	if opts, err = apply(ctx, call, args.OnRequest, opts); err != nil {
		return nil, err
	}
	if opts, err = c.Requests.Run(ctx, call, opts); err != nil {
		return nil, err
	}

	req, err := newHTTPRequest(WithCall(ctx, call), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", call, err)
	}

	fetcher := c.fetcher
	if args.Fetcher != nil {
		fetcher = args.Fetcher
	}
	start := time.Now()
	resp, err := fetcher.Do(req)
	if err == nil && resp == nil {
		err = errors.New("transport returned no response")
	}
	if err != nil {
		nerr := classifyTransportError(ctx, call, err)
		logger.DebugContext(ctx, "call failed",
			slog.String("call", call.String()),
			slog.String("url", opts.URL.Redacted()),
			slog.Bool("timeout", nerr.Timeout),
			slog.Any("error", err))
		return nil, nerr
	}
	if resp.Body == nil {
		resp.Body = http.NoBody
	}

	if resp, err = c.runResponseInterceptors(ctx, call, args.OnResponse, resp); err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "call",
		slog.String("call", call.String()),
		slog.String("key", call.Key),
		slog.String("url", opts.URL.Redacted()),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer c.closeBody(ctx, resp)
		decoded, msg := decodeErrorBody(resp)
		apiErr := newAPIError(call, resp.StatusCode, msg, decoded)
		if code := errorCode(decoded); code != "" {
			apiErr.Code = code
		}
		return &Result{Err: apiErr, Response: resp}, nil
	}

	if ep.Response.Kind.IsStream() {
		return &Result{Data: NewStream(resp.Body, ep.Response), Response: resp}, nil
	}

	defer c.closeBody(ctx, resp)
	v, err := decodeBody(resp, ep.Response)
	if err != nil {
		apiErr := newAPIError(call, resp.StatusCode, "parse failure", nil)
		apiErr.Code = CodeInternal
		apiErr.Err = err
		return &Result{Err: apiErr, Response: resp}, nil
	}
	out, err := schema.Run(ep.Response.Schema, v)
	if err != nil {
		return &Result{Err: newValidationError(call, resp.StatusCode, "response validation failed", err), Response: resp}, nil
	}
	return &Result{Data: out, Response: resp}, nil
}

// validateInput checks every present data slot against its validator.
func validateInput(call *CallContext, route *Route, params map[string]string, args *Args) *ValidationError {
	in := route.Endpoint.Input
	if in.Param != nil {
		values := make(map[string]any, len(params))
		for _, name := range route.Template.Params() {
			values[name] = params[name]
		}
		if _, err := in.Param.Validate(values); err != nil {
			return newValidationError(call, 0, "invalid path parameters", err)
		}
	}
	if in.Query != nil && args.Query != nil {
		if _, err := in.Query.Validate(args.Query); err != nil {
			return newValidationError(call, 0, "invalid query", err)
		}
	}
	if in.JSON != nil && args.JSON != nil {
		if _, err := in.JSON.Validate(args.JSON); err != nil {
			return newValidationError(call, 0, "invalid json body", err)
		}
	}
	if in.Form != nil && args.Form != nil {
		if _, err := in.Form.Validate(args.Form); err != nil {
			return newValidationError(call, 0, "invalid form", err)
		}
	}
	return nil
}

// runResponseInterceptors runs the local interceptor, then the client's.
// When the chain replaces the response, the original body is closed.
func (c *Client) runResponseInterceptors(ctx context.Context, call *CallContext, local Interceptor[http.Response], resp *http.Response) (*http.Response, error) {
	orig := resp
	out, err := apply(ctx, call, local, resp)
	if err == nil {
		out, err = c.Responses.Run(ctx, call, out)
	}
	if out != orig && out.Body != orig.Body {
		c.closeBody(ctx, orig)
	}
	if err != nil {
		c.closeBody(ctx, out)
		return nil, err
	}
	if out.Body == nil {
		out.Body = http.NoBody
	}
	return out, nil
}

func (c *Client) closeBody(ctx context.Context, resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	if err := resp.Body.Close(); err != nil {
		c.log().WarnContext(ctx, "failed to close response body", slog.Any("error", err))
	}
}

func newHTTPRequest(ctx context.Context, opts *RequestOptions) (*http.Request, error) {
	if opts.URL == nil {
		return nil, errors.New("request has no url")
	}
	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL.String(), body)
	if err != nil {
		return nil, err
	}
	if opts.Header != nil {
		req.Header = opts.Header
	}
	return req, nil
}

// overlayHeader replaces the values of every key present in src.
func overlayHeader(dst, src http.Header) {
	for k, vs := range src {
		dst[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
}
