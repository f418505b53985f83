package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/broady/callpath"
)

// RequestIDHeader is the header set by [RequestID].
const RequestIDHeader = "X-Request-Id"

// RequestID returns a request interceptor that sets a random UUID in the
// X-Request-Id header. A value set by the caller is kept.
func RequestID() callpath.Interceptor[callpath.RequestOptions] {
	return func(_ context.Context, _ *callpath.CallContext, req *callpath.RequestOptions) (*callpath.RequestOptions, error) {
		if req.Header.Get(RequestIDHeader) == "" {
			req.Header.Set(RequestIDHeader, uuid.NewString())
		}
		return nil, nil
	}
}
