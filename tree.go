package callpath

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// StreamKey is the reserved terminal key under which streaming endpoints
// are listed by [Node.Keys].
const StreamKey = "$stream"

// Route is a terminal of the call tree: one registered endpoint together
// with its parsed path template.
type Route struct {
	Key      string
	Endpoint Endpoint
	Template Template
}

// Call returns the call context for invocations of the route.
func (r *Route) Call() *CallContext {
	return &CallContext{Key: r.Key, Method: r.Endpoint.Method, Path: r.Template.String()}
}

// Node is one position in the call tree. Literal children, parameter
// children and terminals can coexist on the same node.
// A node is read-only once [Build] returns.
type Node struct {
	children map[string]*Node
	params   map[string]*Node
	methods  map[Method]*Route
	streams  map[Method]*Route
}

func newNode() *Node {
	return &Node{
		children: make(map[string]*Node),
		params:   make(map[string]*Node),
		methods:  make(map[Method]*Route),
		streams:  make(map[Method]*Route),
	}
}

// Child returns the literal child named seg.
func (n *Node) Child(seg string) (*Node, bool) {
	c, ok := n.children[seg]
	return c, ok
}

// ParamChild returns the child reached through the parameter name.
func (n *Node) ParamChild(name string) (*Node, bool) {
	c, ok := n.params[name]
	return c, ok
}

// Method returns the scalar terminal for m.
func (n *Node) Method(m Method) (*Route, bool) {
	r, ok := n.methods[m]
	return r, ok
}

// Stream returns the streaming terminal for m.
func (n *Node) Stream(m Method) (*Route, bool) {
	r, ok := n.streams[m]
	return r, ok
}

// Keys returns the sorted key set of the node: literal names, parameter
// names with their leading ":", lower-case method names, and [StreamKey]
// when the node has a streaming terminal.
func (n *Node) Keys() []string {
	keys := make([]string, 0, len(n.children)+len(n.params)+len(n.methods)+1)
	for name := range n.children {
		keys = append(keys, name)
	}
	for name := range n.params {
		keys = append(keys, ":"+name)
	}
	for m := range n.methods {
		keys = append(keys, m.key())
	}
	if len(n.streams) > 0 {
		keys = append(keys, StreamKey)
	}
	sort.Strings(keys)
	return keys
}

// Walk calls fn for every route below n in a stable order: terminals of a
// node first, then literal children, then parameter children, each sorted
// by name.
func (n *Node) Walk(fn func(*Route)) {
	for _, m := range sortedMethods(n.methods) {
		fn(n.methods[m])
	}
	for _, m := range sortedMethods(n.streams) {
		fn(n.streams[m])
	}
	for _, name := range sortedNames(n.children) {
		n.children[name].Walk(fn)
	}
	for _, name := range sortedNames(n.params) {
		n.params[name].Walk(fn)
	}
}

// Equal reports whether n and o have the same shape and terminal keys.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if !equalKeys(n.Keys(), o.Keys()) {
		return false
	}
	for m, r := range n.methods {
		or, ok := o.methods[m]
		if !ok || or.Key != r.Key {
			return false
		}
	}
	for m, r := range n.streams {
		or, ok := o.streams[m]
		if !ok || or.Key != r.Key {
			return false
		}
	}
	for name, c := range n.children {
		if !c.Equal(o.children[name]) {
			return false
		}
	}
	for name, c := range n.params {
		if !c.Equal(o.params[name]) {
			return false
		}
	}
	return true
}

// ConflictError reports two endpoints that cannot share the call tree.
type ConflictError struct {
	// Path is the template of the position where the conflict was found.
	Path string
	// Method is set when both endpoints define the same method there.
	Method Method
	// Segment is set when one name is used both as a literal and as a
	// parameter.
	Segment string
	Existing string
	Incoming string
}

func (e *ConflictError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("conflicting routes: %s %s defined by both %q and %q", e.Method, e.Path, e.Existing, e.Incoming)
	}
	return fmt.Sprintf("conflicting routes: segment %q at %s is both literal and parameter (%q, %q)", e.Segment, e.Path, e.Existing, e.Incoming)
}

// Build converts the registry into a call tree. Endpoints are folded in
// sorted key order, so equal registries produce equal trees. Every
// descriptor and conflict error is reported, joined.
func Build(reg Registry) (*Node, error) {
	root := newNode()
	var errs []error
	for _, key := range reg.Keys() {
		ep := reg[key]
		if err := ep.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("endpoint %s: %w", key, err))
			continue
		}
		ep.Method, _ = ParseMethod(string(ep.Method))
		ep.Prefix = normalizePrefix(ep.Prefix)
		tmpl, _ := ParseTemplate(ep.Path)

		route := &Route{Key: key, Endpoint: ep, Template: tmpl}
		if err := merge(root, fold(route, tmpl), nil); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return root, nil
}

// fold builds the partial tree holding only route.
func fold(route *Route, rest Template) *Node {
	n := newNode()
	if len(rest) == 0 {
		if route.Endpoint.Response.Kind.IsStream() {
			n.streams[route.Endpoint.Method] = route
		} else {
			n.methods[route.Endpoint.Method] = route
		}
		return n
	}
	seg := rest[0]
	child := fold(route, rest[1:])
	if seg.Kind == ParamSegment {
		n.params[seg.Name] = child
	} else {
		n.children[seg.Name] = child
	}
	return n
}

// merge folds src into dst. Subtrees under the same key merge
// recursively. at is the template of dst's position.
func merge(dst, src *Node, at Template) error {
	for m, r := range src.methods {
		if err := claim(dst, m, r, at); err != nil {
			return err
		}
		dst.methods[m] = r
	}
	for m, r := range src.streams {
		if err := claim(dst, m, r, at); err != nil {
			return err
		}
		dst.streams[m] = r
	}

	for name, child := range src.children {
		seg := Segment{Kind: ResourceSegment, Name: name}
		if other, ok := dst.params[name]; ok {
			return &ConflictError{Path: at.String(), Segment: name, Existing: anyRoute(other), Incoming: anyRoute(child)}
		}
		if err := mergeChild(dst.children, name, child, append(at[:len(at):len(at)], seg)); err != nil {
			return err
		}
	}
	for name, child := range src.params {
		seg := Segment{Kind: ParamSegment, Name: name}
		if other, ok := dst.children[name]; ok {
			return &ConflictError{Path: at.String(), Segment: name, Existing: anyRoute(other), Incoming: anyRoute(child)}
		}
		if err := mergeChild(dst.params, name, child, append(at[:len(at):len(at)], seg)); err != nil {
			return err
		}
	}
	return nil
}

func mergeChild(into map[string]*Node, name string, child *Node, at Template) error {
	existing, ok := into[name]
	if !ok {
		into[name] = child
		return nil
	}
	return merge(existing, child, at)
}

// claim fails when dst already has a terminal for m, scalar or stream.
func claim(dst *Node, m Method, r *Route, at Template) error {
	existing, ok := dst.methods[m]
	if !ok {
		existing, ok = dst.streams[m]
	}
	if !ok {
		return nil
	}
	return &ConflictError{Path: at.String(), Method: m, Existing: existing.Key, Incoming: r.Key}
}

// anyRoute names the first route under n, for error messages.
func anyRoute(n *Node) string {
	var key string
	n.Walk(func(r *Route) {
		if key == "" {
			key = r.Key
		}
	})
	return key
}

func sortedMethods(m map[Method]*Route) []Method {
	out := make([]Method, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedNames(m map[string]*Node) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Cursor is a position in a client's call tree together with the path
// values bound on the way there. Cursors are values: every navigation
// returns a new cursor and leaves the receiver unchanged.
//
// A failed navigation does not panic. The cursor remembers the error and
// every call made through it returns that error.
type Cursor struct {
	client *Client
	node   *Node
	at     Template
	params map[string]string
	err    error
}

// Path follows literal segments. A segment containing "/" is split.
func (c Cursor) Path(segs ...string) Cursor {
	for _, s := range segs {
		for _, part := range strings.Split(strings.Trim(s, "/"), "/") {
			if part == "" {
				continue
			}
			c = c.step(part)
		}
	}
	return c
}

func (c Cursor) step(seg string) Cursor {
	if c.err != nil {
		return c
	}
	at := append(c.at[:len(c.at):len(c.at)], Segment{Kind: ResourceSegment, Name: seg})
	child, ok := c.node.Child(seg)
	if !ok {
		c.err = fmt.Errorf("%w: %s", ErrUnknownRoute, at)
		return c
	}
	c.node, c.at = child, at
	return c
}

// Param follows the parameter segment called name and binds it to value.
func (c Cursor) Param(name, value string) Cursor {
	if c.err != nil {
		return c
	}
	at := append(c.at[:len(c.at):len(c.at)], Segment{Kind: ParamSegment, Name: name})
	child, ok := c.node.ParamChild(name)
	if !ok {
		c.err = fmt.Errorf("%w: %s", ErrUnknownRoute, at)
		return c
	}
	params := make(map[string]string, len(c.params)+1)
	for k, v := range c.params {
		params[k] = v
	}
	params[name] = value
	c.node, c.at, c.params = child, at, params
	return c
}

// Value binds value to the only parameter segment below the cursor.
// It fails when the position has no parameter child or more than one.
func (c Cursor) Value(value string) Cursor {
	if c.err != nil {
		return c
	}
	if len(c.node.params) != 1 {
		c.err = fmt.Errorf("%w: %s has %d parameter children", ErrUnknownRoute, c.at, len(c.node.params))
		return c
	}
	for name := range c.node.params {
		return c.Param(name, value)
	}
	return c
}

// Err returns the navigation error, if any.
func (c Cursor) Err() error { return c.err }

// Node returns the call tree position, or nil after a failed navigation.
func (c Cursor) Node() *Node {
	if c.err != nil {
		return nil
	}
	return c.node
}

// Params returns a copy of the bound path values.
func (c Cursor) Params() map[string]string {
	out := make(map[string]string, len(c.params))
	for k, v := range c.params {
		out[k] = v
	}
	return out
}

// String renders the cursor position as a template.
func (c Cursor) String() string { return c.at.String() }

// Call invokes the scalar endpoint registered for method at the cursor.
func (c Cursor) Call(ctx context.Context, method Method, args *Args) (*Result, error) {
	if c.err != nil {
		return nil, c.err
	}
	route, ok := c.node.Method(method)
	if !ok {
		if _, isStream := c.node.Stream(method); isStream {
			return nil, fmt.Errorf("%w: %s %s is a stream", ErrUnknownRoute, method, c.at)
		}
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownRoute, method, c.at)
	}
	return c.client.do(ctx, route, c.params, args)
}

// Stream invokes the streaming endpoint registered for method at the
// cursor. On success the result's data is a [*Stream].
func (c Cursor) Stream(ctx context.Context, method Method, args *Args) (*Result, error) {
	if c.err != nil {
		return nil, c.err
	}
	route, ok := c.node.Stream(method)
	if !ok {
		return nil, fmt.Errorf("%w: no stream for %s %s", ErrUnknownRoute, method, c.at)
	}
	return c.client.do(ctx, route, c.params, args)
}

func (c Cursor) Get(ctx context.Context, args *Args) (*Result, error) {
	return c.Call(ctx, GET, args)
}

func (c Cursor) Post(ctx context.Context, args *Args) (*Result, error) {
	return c.Call(ctx, POST, args)
}

func (c Cursor) Put(ctx context.Context, args *Args) (*Result, error) {
	return c.Call(ctx, PUT, args)
}

func (c Cursor) Patch(ctx context.Context, args *Args) (*Result, error) {
	return c.Call(ctx, PATCH, args)
}

func (c Cursor) Delete(ctx context.Context, args *Args) (*Result, error) {
	return c.Call(ctx, DELETE, args)
}
