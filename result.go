package callpath

import (
	"fmt"
	"net/http"
)

// Result is the outcome of a call that reached the point of producing or
// checking data. Exactly one of Data and Err is meaningful: Err is nil on
// success.
//
// Response is the transport response, with its body already consumed for
// scalar endpoints. It is nil when request data failed validation before
// anything was sent.
type Result struct {
	Data     any
	Err      error
	Response *http.Response
}

// OK reports whether the call succeeded.
func (r *Result) OK() bool { return r != nil && r.Err == nil }

// Status returns the response status code, or 0 without a response.
func (r *Result) Status() int {
	if r == nil || r.Response == nil {
		return 0
	}
	return r.Response.StatusCode
}

// Unwrap returns Data, or Err when the call failed.
// It is the convenience for callers who prefer a single error path:
//
//	v, err := callpath.Unwrap(cursor.Get(ctx, nil))
func (r *Result) Unwrap() (any, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Data, nil
}

// Stream returns the decoder of a successful streaming call, or nil.
func (r *Result) Stream() *Stream {
	if r == nil || r.Err != nil {
		return nil
	}
	s, _ := r.Data.(*Stream)
	return s
}

// Unwrap folds a call's two error channels into one.
func Unwrap(r *Result, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return r.Unwrap()
}

// As returns the result data as T.
func As[T any](r *Result, err error) (T, error) {
	var zero T
	v, err := Unwrap(r, err)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("result data is %T, not %T", v, zero)
	}
	return t, nil
}
