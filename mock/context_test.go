package mock

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/broady/callpath"
)

func TestRequestFromContext(t *testing.T) {
	t.Run("with request in context", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()
		ctx := newContext(context.Background(), w, req, &callpath.CallContext{})

		if RequestFromContext(ctx) != req {
			t.Error("expected request to be returned from context")
		}
	})

	t.Run("without request in context", func(t *testing.T) {
		if RequestFromContext(context.Background()) != nil {
			t.Error("expected nil when request not in context")
		}
	})
}

func TestSetHeader(t *testing.T) {
	t.Run("with writer in context", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()
		ctx := newContext(context.Background(), w, req, &callpath.CallContext{})

		SetHeader(ctx, "X-Custom-Header", "custom-value")

		if w.Header().Get("X-Custom-Header") != "custom-value" {
			t.Errorf("expected header to be set, got %s", w.Header().Get("X-Custom-Header"))
		}
	})

	t.Run("without writer in context", func(t *testing.T) {
		// Should not panic
		SetHeader(context.Background(), "X-Custom-Header", "custom-value")
	})
}

func TestCallFromContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/users/1", nil)
	w := httptest.NewRecorder()
	call := &callpath.CallContext{Key: "users.show", Method: callpath.GET, Path: "/users/:id"}

	got, ok := CallFromContext(newContext(context.Background(), w, req, call))
	if !ok || got != call {
		t.Errorf("expected call in context, got %v", got)
	}
	if _, ok := CallFromContext(context.Background()); ok {
		t.Error("expected no call on a bare context")
	}
}
