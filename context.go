package callpath

import (
	"context"
)

// CallContext identifies one invocation. It is built once per call and
// passed unchanged to every interceptor and error of that call.
type CallContext struct {
	// Key is the registry key of the endpoint.
	Key string
	// Method is the HTTP method.
	Method Method
	// Path is the logical path template, e.g. "/users/:id".
	// It never includes the endpoint prefix or substituted values.
	Path string
}

func (c *CallContext) String() string {
	return string(c.Method) + " " + c.Path
}

type contextKey struct {
	name string
}

var callKey = &contextKey{"call"}

// WithCall returns a context carrying call.
// The request pipeline attaches the call to every outgoing request, so
// transport decorators can read it with [CallFromContext].
func WithCall(ctx context.Context, call *CallContext) context.Context {
	return context.WithValue(ctx, callKey, call)
}

// CallFromContext returns the call attached by [WithCall].
func CallFromContext(ctx context.Context) (*CallContext, bool) {
	call, ok := ctx.Value(callKey).(*CallContext)
	return call, ok
}
