package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/broady/callpath"
	"github.com/broady/callpath/config"
	"github.com/broady/callpath/middleware"
)

type CallCmd struct {
	Key     string            `arg:"" help:"Registry key of the endpoint."`
	Param   map[string]string `help:"Path parameter, as name=value." short:"p"`
	Query   map[string]string `help:"Query parameter, as name=value." short:"q"`
	JSON    string            `help:"JSON request body." name:"json" short:"d"`
	Header  map[string]string `help:"Request header, as name=value." short:"H"`
	Verbose bool              `help:"Log each request and response." short:"v"`
}

func (c *CallCmd) Run(g *Globals, cli *CLI) error {
	cfg, err := cli.load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, g.Stderr)

	client, err := newClient(cfg, logger, c.Verbose)
	if err != nil {
		return err
	}
	route, ok := client.Route(c.Key)
	if !ok {
		return fmt.Errorf("%w: %q", callpath.ErrUnknownRoute, c.Key)
	}

	args := &callpath.Args{Params: c.Param}
	if len(c.Query) > 0 {
		args.Query = c.Query
	}
	if len(c.Header) > 0 {
		args.Headers = make(http.Header, len(c.Header))
		for k, v := range c.Header {
			args.Headers.Set(k, v)
		}
	}
	if c.JSON != "" {
		var body any
		if err := json.Unmarshal([]byte(c.JSON), &body); err != nil {
			return fmt.Errorf("--json: %w", err)
		}
		args.JSON = body
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if !route.Endpoint.Response.Kind.IsStream() && cfg.Client.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Client.Timeout)
		defer cancel()
	}

	res, err := client.Invoke(ctx, c.Key, nil, args)
	if err != nil {
		return err
	}
	if res.Err != nil {
		var apiErr *callpath.APIError
		if errors.As(res.Err, &apiErr) && apiErr.Body != nil {
			_ = writeJSON(g.Stdout, apiErr.Body, true)
		}
		return res.Err
	}

	if s := res.Stream(); s != nil {
		return printStream(g.Stdout, logger, s)
	}
	return printResult(g.Stdout, route.Endpoint.Response.Kind, res.Data)
}

func newClient(cfg *config.Config, logger *slog.Logger, verbose bool) (*callpath.Client, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	client, err := callpath.New(cfg.Client.BaseURL, reg)
	if err != nil {
		return nil, err
	}
	client.WithFetcher(&http.Client{}).WithLogger(logger)
	for k, v := range cfg.Client.Headers {
		client.WithHeader(k, v)
	}
	client.Requests.Add(middleware.RequestID())
	if verbose {
		client.Requests.Add(middleware.LogRequests(logger))
		client.Responses.Add(middleware.LogResponses(logger))
	}
	return client, nil
}

func printResult(w io.Writer, kind callpath.ResponseKind, data any) error {
	switch kind {
	case callpath.KindNoContent:
		return nil
	case callpath.KindText:
		_, err := fmt.Fprintln(w, data)
		return err
	}
	return writeJSON(w, data, true)
}

// sseLine is how an SSE event is printed.
type sseLine struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data"`
}

// printStream writes one line per chunk, except for binary streams which
// are copied as is. Malformed chunks are logged and skipped.
func printStream(w io.Writer, logger *slog.Logger, s *callpath.Stream) error {
	for chunk := range s.Chunks() {
		var err error
		switch ch := chunk.(type) {
		case callpath.Event:
			err = writeJSON(w, sseLine{Event: ch.Name, ID: ch.ID, Data: ch.Data}, false)
		case callpath.JSONItem:
			err = writeJSON(w, ch.Data, false)
		case callpath.BinaryChunk:
			_, err = w.Write(ch.Data)
		case *callpath.ParseError:
			logger.Warn("skipping malformed chunk", slog.Any("error", ch.Err), slog.String("raw", ch.Raw))
		}
		if err != nil {
			s.Close()
			return err
		}
	}
	return s.Err()
}

func writeJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
