package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig()

	if len(cfg.AllowOrigins) != 1 || cfg.AllowOrigins[0] != "*" {
		t.Errorf("expected AllowOrigins to be [*], got %v", cfg.AllowOrigins)
	}
	for _, m := range []string{"PUT", "PATCH", "DELETE"} {
		if !strings.Contains(strings.Join(cfg.AllowMethods, ","), m) {
			t.Errorf("expected %s in default methods %v", m, cfg.AllowMethods)
		}
	}
}

func TestCORS_NilConfig(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()

	CORS(nil)(okHandler()).ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected Access-Control-Allow-Origin *, got %s", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != RequestIDHeader {
		t.Errorf("expected request id to be exposed, got %q", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest("OPTIONS", "/api/users/1", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	w := httptest.NewRecorder()

	CORS(&CORSConfig{MaxAge: 600})(next).ServeHTTP(w, req)

	if called {
		t.Error("preflight must not reach the handler")
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "DELETE") {
		t.Errorf("expected DELETE in allowed methods, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Last-Event-ID") {
		t.Errorf("expected Last-Event-ID in allowed headers, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Errorf("expected max age 600, got %q", got)
	}
}

func TestCORS_PlainOptionsPassesThrough(t *testing.T) {
	req := httptest.NewRequest("OPTIONS", "/test", nil)
	w := httptest.NewRecorder()

	CORS(nil)(okHandler()).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("an OPTIONS request without a preflight header should reach the handler, got %d", w.Code)
	}
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *CORSConfig
		origin      string
		wantOrigin  string
		wantCredits string
	}{
		{"specific allowed", &CORSConfig{AllowOrigins: []string{"http://a.com"}}, "http://a.com", "http://a.com", ""},
		{"specific denied", &CORSConfig{AllowOrigins: []string{"http://a.com"}}, "http://b.com", "", ""},
		{"no origin", &CORSConfig{AllowOrigins: []string{"http://a.com"}}, "", "", ""},
		{"wildcard", &CORSConfig{}, "http://b.com", "*", ""},
		{"wildcard with credentials", &CORSConfig{AllowCredentials: true}, "http://b.com", "http://b.com", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()

			CORS(tt.cfg)(okHandler()).ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCredits {
				t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, tt.wantCredits)
			}
		})
	}
}
