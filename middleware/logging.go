package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/broady/callpath"
	"github.com/broady/callpath/mock"
)

// LogRequests returns a request interceptor that logs every outgoing call
// using slog. It never changes the request.
func LogRequests(logger *slog.Logger) callpath.Interceptor[callpath.RequestOptions] {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, call *callpath.CallContext, req *callpath.RequestOptions) (*callpath.RequestOptions, error) {
		logger.InfoContext(ctx, "request started",
			slog.String("endpoint", call.String()),
			slog.String("key", call.Key),
			slog.String("url", req.URL.Redacted()),
		)
		return nil, nil
	}
}

// LogResponses returns a response interceptor that logs the status of
// every response. Non-2xx statuses are logged at Warn.
func LogResponses(logger *slog.Logger) callpath.Interceptor[http.Response] {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, call *callpath.CallContext, resp *http.Response) (*http.Response, error) {
		level := slog.LevelInfo
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "response received",
			slog.String("endpoint", call.String()),
			slog.Int("status", resp.StatusCode),
		)
		return nil, nil
	}
}

// LoggingInterceptor creates a mock server interceptor that logs handled
// calls using slog. It logs the start and end of each call, including
// duration and error status.
func LoggingInterceptor(logger *slog.Logger) mock.Interceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, req *mock.Request, handler mock.HandlerFunc) (any, error) {
		start := time.Now()

		logger.InfoContext(ctx, "request started",
			slog.String("endpoint", req.Call.String()),
		)

		res, err := handler(ctx, req)
		duration := time.Since(start)

		if err != nil {
			logger.ErrorContext(ctx, "request failed",
				slog.String("endpoint", req.Call.String()),
				slog.Duration("duration", duration),
				slog.Any("error", err),
			)
		} else {
			logger.InfoContext(ctx, "request completed",
				slog.String("endpoint", req.Call.String()),
				slog.Duration("duration", duration),
			)
		}

		return res, err
	}
}
