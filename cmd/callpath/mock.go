package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/broady/callpath"
	"github.com/broady/callpath/config"
	"github.com/broady/callpath/middleware"
	"github.com/broady/callpath/mock"
)

type MockCmd struct {
	Addr string `help:"Listen address (default: mock.addr)." short:"a"`
}

func (c *MockCmd) Run(g *Globals, cli *CLI) error {
	cfg, err := cli.load()
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Mock.Addr = c.Addr
	}
	logger := newLogger(cfg.Log, g.Stderr)

	h, err := newMockHandler(cfg, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Mock.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mock server starting", slog.String("addr", cfg.Mock.Addr), slog.Int("endpoints", len(cfg.Endpoints)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newMockHandler serves every endpoint that has an example, and every
// no-content endpoint. The rest answer not_implemented.
func newMockHandler(cfg *config.Config, logger *slog.Logger) (http.Handler, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	srv, err := mock.New(reg)
	if err != nil {
		return nil, err
	}
	srv.WithLogger(logger).
		WithInterceptor(middleware.LoggingInterceptor(logger)).
		WithMaxRequestBodySize(cfg.Mock.MaxBodySize).
		WithStreamHeartbeat(cfg.Mock.Heartbeat).
		WithStreamWriteTimeout(cfg.Mock.WriteTimeout)

	var metrics *middleware.Metrics
	if cfg.Mock.MetricsPath != "" {
		metrics = middleware.NewMetrics(nil)
		srv.WithMiddleware(metrics.Middleware)
	}
	if cfg.Mock.CORS {
		srv.WithMiddleware(middleware.CORS(middleware.DefaultCORSConfig()))
	}

	for _, r := range srv.Routes() {
		ep := cfg.Endpoints[r.Key]
		if r.Endpoint.Response.Kind.IsStream() {
			if len(ep.Examples) == 0 {
				continue
			}
			items := ep.Examples
			if r.Endpoint.Response.Kind == callpath.KindSSE {
				items = sseItems(items)
			}
			err = srv.HandleStream(r.Key, mock.FixtureStream(items...))
		} else {
			if ep.Example == nil && r.Endpoint.Response.Kind != callpath.KindNoContent {
				continue
			}
			err = srv.Handle(r.Key, mock.Fixture(ep.Example))
		}
		if err != nil {
			return nil, err
		}
	}

	h, err := srv.Handler()
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		return h, nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET "+cfg.Mock.MetricsPath, metrics.Handler())
	mux.Handle("/", h)
	return mux, nil
}

// sseItems turns examples shaped {event, data[, id]} into named events.
// Anything else is sent as a "message" event.
func sseItems(examples []any) []any {
	out := make([]any, len(examples))
	for i, ex := range examples {
		out[i] = ex
		m, ok := ex.(map[string]any)
		if !ok {
			continue
		}
		name, hasName := m["event"].(string)
		data, hasData := m["data"]
		if !hasName || !hasData {
			continue
		}
		ev := mock.Event{Name: name, Data: data}
		if id, ok := m["id"].(string); ok {
			ev.ID = id
		}
		out[i] = ev
	}
	return out
}
