// Package mock serves a callpath registry over HTTP. Each endpoint is
// routed by its method and path template and answers with a registered
// handler or fixture, written with the same wire rules the client decodes.
//
//	srv, err := mock.New(reg)
//	srv.Handle("users.show", mock.Fixture(map[string]any{"id": "1"}))
//	http.ListenAndServe(":8080", srv.Handler())
package mock

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/broady/callpath"
)

const (
	// defaultStreamWriteTimeout bounds a single stream write so stuck
	// clients do not hold handler goroutines forever.
	defaultStreamWriteTimeout = 30 * time.Second

	// defaultStreamHeartbeat keeps connections alive through proxies
	// that have idle timeouts (typically 60s).
	defaultStreamHeartbeat = 30 * time.Second
)

// Server turns a registry into an http.Handler.
// Use Handler() to get an http.Handler for use with http.ListenAndServe.
type Server struct {
	tree   *callpath.Node
	routes map[string]*callpath.Route

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	streams  map[string]StreamFunc

	errorTransformer        ErrorTransformer
	maskInternalErrors      bool
	interceptors            []Interceptor
	middlewares             []func(http.Handler) http.Handler
	logger                  *slog.Logger
	maxRequestBodySize      uint64
	streamWriteTimeout      time.Duration
	streamWriteTimeoutIsSet bool // distinguishes zero (disabled) from unset (use default)
	streamHeartbeat         time.Duration
	streamHeartbeatIsSet    bool // distinguishes zero (disabled) from unset (use default)
}

// New builds the call tree of reg. Construction fails with the same
// errors as [callpath.Build].
func New(reg callpath.Registry) (*Server, error) {
	tree, err := callpath.Build(reg)
	if err != nil {
		return nil, err
	}
	s := &Server{
		tree:               tree,
		routes:             make(map[string]*callpath.Route),
		handlers:           make(map[string]HandlerFunc),
		streams:            make(map[string]StreamFunc),
		maxRequestBodySize: 1 << 20, // 1MB default
	}
	tree.Walk(func(r *callpath.Route) { s.routes[r.Key] = r })
	return s, nil
}

// WithErrorTransformer adds a custom error transformer.
// It returns the server for chaining.
func (s *Server) WithErrorTransformer(fn ErrorTransformer) *Server {
	s.errorTransformer = fn
	return s
}

// WithMaskInternalErrors replaces the message of internal errors with a
// generic one. Interceptors still see the original error.
func (s *Server) WithMaskInternalErrors() *Server {
	s.maskInternalErrors = true
	return s
}

// WithInterceptor adds an interceptor. Interceptors run in the order
// they were added, the first one outermost.
func (s *Server) WithInterceptor(i Interceptor) *Server {
	s.interceptors = append(s.interceptors, i)
	return s
}

// WithMiddleware adds an HTTP middleware to wrap the server.
// Middleware is applied in the order added (first added is outermost).
func (s *Server) WithMiddleware(mw func(http.Handler) http.Handler) *Server {
	s.middlewares = append(s.middlewares, mw)
	return s
}

// WithLogger sets a custom logger for the server.
// If not set, slog.Default() will be used.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	s.logger = logger
	return s
}

// WithMaxRequestBodySize sets the maximum request body size.
// A value of 0 means no limit. Default is 1MB (1 << 20).
func (s *Server) WithMaxRequestBodySize(size uint64) *Server {
	s.maxRequestBodySize = size
	return s
}

// WithStreamWriteTimeout sets the timeout for writing one stream item.
// If a single write takes longer than this, the stream is closed.
//
// Default is 30 seconds. Use 0 to disable.
func (s *Server) WithStreamWriteTimeout(d time.Duration) *Server {
	s.streamWriteTimeout = d
	s.streamWriteTimeoutIsSet = true
	return s
}

func (s *Server) getStreamWriteTimeout() time.Duration {
	if s.streamWriteTimeoutIsSet {
		return s.streamWriteTimeout
	}
	return defaultStreamWriteTimeout
}

// WithStreamHeartbeat sets the interval between heartbeats on idle SSE
// and NDJSON streams. Default is 30 seconds. Use 0 to disable heartbeats.
func (s *Server) WithStreamHeartbeat(d time.Duration) *Server {
	s.streamHeartbeat = d
	s.streamHeartbeatIsSet = true
	return s
}

func (s *Server) getStreamHeartbeat() time.Duration {
	if s.streamHeartbeatIsSet {
		return s.streamHeartbeat
	}
	return defaultStreamHeartbeat
}

func (s *Server) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// Handle registers the handler of a scalar endpoint. A later call for
// the same key replaces the handler.
func (s *Server) Handle(key string, fn HandlerFunc) error {
	r, ok := s.routes[key]
	if !ok {
		return fmt.Errorf("%w: %q", callpath.ErrUnknownRoute, key)
	}
	if r.Endpoint.Response.Kind.IsStream() {
		return fmt.Errorf("endpoint %s is a %s stream, use HandleStream", key, r.Endpoint.Response.Kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[key]; exists {
		s.log().Warn("duplicate handler registration", slog.String("endpoint", key))
	}
	s.handlers[key] = fn
	return nil
}

// HandleStream registers the handler of a streaming endpoint.
func (s *Server) HandleStream(key string, fn StreamFunc) error {
	r, ok := s.routes[key]
	if !ok {
		return fmt.Errorf("%w: %q", callpath.ErrUnknownRoute, key)
	}
	if !r.Endpoint.Response.Kind.IsStream() {
		return fmt.Errorf("endpoint %s is not a stream, use Handle", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.streams[key]; exists {
		s.log().Warn("duplicate handler registration", slog.String("endpoint", key))
	}
	s.streams[key] = fn
	return nil
}

func (s *Server) handler(key string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[key]
	return h, ok
}

func (s *Server) streamHandler(key string) (StreamFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.streams[key]
	return h, ok
}

// Routes returns the served routes in tree order.
func (s *Server) Routes() []*callpath.Route {
	var out []*callpath.Route
	s.tree.Walk(func(r *callpath.Route) { out = append(out, r) })
	return out
}

// Handler returns an http.Handler for use with http.ListenAndServe or
// other HTTP servers. The returned handler includes all configured
// middleware. Two endpoints whose prefixed URLs collide are an error.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()
	for _, r := range s.Routes() {
		if err := register(mux, Pattern(r), &route{server: s, route: r}); err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", r.Key, err)
		}
	}

	var h http.Handler = s.recoverer(mux)
	// Apply middleware in reverse order so first added is outermost
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		h = s.middlewares[i](h)
	}
	return h, nil
}

// register adds a pattern, turning the mux's conflict panic into an error.
func register(mux *http.ServeMux, pattern string, h http.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
		}
	}()
	mux.Handle(pattern, h)
	return nil
}

// Pattern is the ServeMux pattern serving r: "GET /api/users/{id}".
// The root path matches only itself.
func Pattern(r *callpath.Route) string {
	var b strings.Builder
	b.WriteString(string(r.Endpoint.Method))
	b.WriteByte(' ')
	b.WriteString(r.Endpoint.Prefix)
	if len(r.Template) == 0 {
		b.WriteString("/{$}")
		return b.String()
	}
	for _, seg := range r.Template {
		b.WriteByte('/')
		if seg.Kind == callpath.ParamSegment {
			b.WriteString("{" + seg.Name + "}")
		} else {
			b.WriteString(seg.Name)
		}
	}
	return b.String()
}

// recoverer turns handler panics into internal errors.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log().Error("PANIC recovered",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())))
				writeError(w, NewError(callpath.CodeInternal, fmt.Sprintf("internal server error (panic): %v", rec)), s.log())
			}
		}()
		next.ServeHTTP(w, req)
	})
}
