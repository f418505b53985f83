// Package callpath builds a navigable HTTP client from a registry of
// endpoint descriptors.
//
// The registry is converted once into a call tree that mirrors the URL
// paths. Callers walk the tree with a [Cursor] and invoke the terminal
// methods; every call runs through the same pipeline of validation,
// interceptors, transport and decoding:
//
//	reg := callpath.Registry{
//	    "users.show": {
//	        Method:   callpath.GET,
//	        Path:     "/users/:id",
//	        Response: callpath.JSON(schema.Struct[User]()),
//	    },
//	}
//	client, err := callpath.New("https://api.example.com", reg)
//	...
//	res, err := client.Path("users").Param("id", "42").Get(ctx, nil)
//
// Transport failures are returned as the call's error ([*NetworkError]).
// Failures that concern an obtained response are carried in [Result].Err
// ([*APIError], [*ValidationError]).
package callpath

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Fetcher performs HTTP requests. *http.Client implements it.
type Fetcher interface {
	Do(*http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to [Fetcher].
type FetcherFunc func(*http.Request) (*http.Response, error)

func (f FetcherFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// Client is the call surface built from one registry.
// Use New to create one, then configure it with the With methods before
// making calls. A configured client is safe for concurrent use.
type Client struct {
	baseURL string
	tree    *Node
	routes  map[string]*Route
	fetcher Fetcher
	header  http.Header
	logger  *slog.Logger

	// Requests runs on the options of every outgoing request.
	Requests *InterceptorManager[RequestOptions]
	// Responses runs on every transport response.
	Responses *InterceptorManager[http.Response]
}

// New builds the call tree of reg. The base URL must be absolute.
func New(baseURL string, reg Registry) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("base url %q must not have a query or fragment", baseURL)
	}

	tree, err := Build(reg)
	if err != nil {
		return nil, err
	}
	routes := make(map[string]*Route, len(reg))
	tree.Walk(func(r *Route) { routes[r.Key] = r })

	return &Client{
		baseURL:   strings.TrimRight(u.String(), "/"),
		tree:      tree,
		routes:    routes,
		fetcher:   http.DefaultClient,
		header:    make(http.Header),
		Requests:  &InterceptorManager[RequestOptions]{},
		Responses: &InterceptorManager[http.Response]{},
	}, nil
}

// WithFetcher sets the transport. The default is http.DefaultClient.
func (c *Client) WithFetcher(f Fetcher) *Client {
	c.fetcher = f
	return c
}

// WithHeader adds a default header sent with every call.
// Per-call headers take precedence.
func (c *Client) WithHeader(key, value string) *Client {
	c.header.Add(key, value)
	return c
}

// WithLogger sets the logger. If not set, slog.Default() is used.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// BaseURL returns the base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Tree returns the root of the call tree.
func (c *Client) Tree() *Node { return c.tree }

// Root returns a cursor at the root of the call tree.
func (c *Client) Root() Cursor {
	return Cursor{client: c, node: c.tree}
}

// Path is shorthand for c.Root().Path(segs...).
func (c *Client) Path(segs ...string) Cursor {
	return c.Root().Path(segs...)
}

// Route returns the route registered under key.
func (c *Client) Route(key string) (*Route, bool) {
	r, ok := c.routes[key]
	return r, ok
}

// Routes returns every route in tree order.
func (c *Client) Routes() []*Route {
	out := make([]*Route, 0, len(c.routes))
	c.tree.Walk(func(r *Route) { out = append(out, r) })
	return out
}

// Invoke calls the endpoint registered under key, scalar or streaming,
// with the given path values.
func (c *Client) Invoke(ctx context.Context, key string, params map[string]string, args *Args) (*Result, error) {
	route, ok := c.routes[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, key)
	}
	return c.do(ctx, route, params, args)
}
