package mock

import (
	"context"
	"net/http"

	"github.com/broady/callpath"
)

type exchangeKey struct{}

// exchange is the request being served and its response writer.
type exchange struct {
	w http.ResponseWriter
	r *http.Request
}

func exchangeFrom(ctx context.Context) *exchange {
	ex, _ := ctx.Value(exchangeKey{}).(*exchange)
	return ex
}

// RequestFromContext returns the HTTP request being served, or nil
// outside a [Server] handler.
func RequestFromContext(ctx context.Context) *http.Request {
	if ex := exchangeFrom(ctx); ex != nil {
		return ex.r
	}
	return nil
}

// SetHeader sets a response header. It is a no-op outside a [Server]
// handler. Streaming handlers must call it before the first send.
func SetHeader(ctx context.Context, key, value string) {
	if ex := exchangeFrom(ctx); ex != nil {
		ex.w.Header().Set(key, value)
	}
}

// CallFromContext returns the endpoint being served.
func CallFromContext(ctx context.Context) (*callpath.CallContext, bool) {
	return callpath.CallFromContext(ctx)
}

func newContext(ctx context.Context, w http.ResponseWriter, r *http.Request, call *callpath.CallContext) context.Context {
	ctx = context.WithValue(ctx, exchangeKey{}, &exchange{w: w, r: r})
	return callpath.WithCall(ctx, call)
}
