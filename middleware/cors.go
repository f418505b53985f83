package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig holds the configuration for CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists the origins allowed to call the mock. "*" allows
	// every origin. Default: ["*"]
	AllowOrigins []string

	// AllowMethods is answered to preflight requests.
	// Default: ["GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"]
	AllowMethods []string

	// AllowHeaders is answered to preflight requests.
	// Default: ["Content-Type", "Authorization", "Accept", "Last-Event-ID", "X-Request-Id"]
	AllowHeaders []string

	// ExposeHeaders lists response headers readable by browser code.
	ExposeHeaders []string

	// AllowCredentials allows cookies and HTTP auth. The requesting origin
	// is then echoed, since "*" cannot be combined with credentials.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits it.
	MaxAge int
}

// DefaultCORSConfig is a permissive configuration suitable for serving a
// mock API to browser clients during development. It allows all origins,
// every method an endpoint can declare, and the headers the client and
// its interceptors send.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  defaultMethods(),
		AllowHeaders:  defaultHeaders(),
		ExposeHeaders: []string{RequestIDHeader},
	}
}

func defaultMethods() []string {
	return []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
}

func defaultHeaders() []string {
	return []string{"Content-Type", "Authorization", "Accept", "Last-Event-ID", RequestIDHeader}
}

// corsPolicy is a CORSConfig with defaults applied and header values
// joined once.
type corsPolicy struct {
	origins     []string
	anyOrigin   bool
	credentials bool
	methods     string
	headers     string
	expose      string
	maxAge      string
}

func newCORSPolicy(cfg *CORSConfig) *corsPolicy {
	p := &corsPolicy{
		origins:     cfg.AllowOrigins,
		credentials: cfg.AllowCredentials,
		methods:     strings.Join(orDefault(cfg.AllowMethods, defaultMethods), ", "),
		headers:     strings.Join(orDefault(cfg.AllowHeaders, defaultHeaders), ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
	}
	if len(p.origins) == 0 {
		p.origins = []string{"*"}
	}
	p.anyOrigin = slices.Contains(p.origins, "*")
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return p
}

func orDefault(v []string, def func() []string) []string {
	if len(v) == 0 {
		return def()
	}
	return v
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin,
// or "" when the origin is not allowed.
func (p *corsPolicy) allowOrigin(origin string) string {
	switch {
	case p.anyOrigin && (origin == "" || !p.credentials):
		return "*"
	case origin == "":
		return ""
	case p.anyOrigin || slices.Contains(p.origins, origin):
		return origin
	}
	return ""
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}

// CORS returns an HTTP middleware that handles CORS preflight requests and sets CORS headers.
// It wraps the whole http.Handler, so preflight requests never reach endpoint routing.
// A nil cfg uses [DefaultCORSConfig].
func CORS(cfg *CORSConfig) func(http.Handler) http.Handler {
	if cfg == nil {
		cfg = DefaultCORSConfig()
	}
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if allow := p.allowOrigin(r.Header.Get("Origin")); allow != "" {
				h.Set("Access-Control-Allow-Origin", allow)
				if allow != "*" {
					h.Add("Vary", "Origin")
				}
				if p.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			if p.expose != "" {
				h.Set("Access-Control-Expose-Headers", p.expose)
			}

			if !isPreflight(r) {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", p.methods)
			h.Set("Access-Control-Allow-Headers", p.headers)
			if p.maxAge != "" {
				h.Set("Access-Control-Max-Age", p.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
