package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/broady/callpath"
	"github.com/broady/callpath/schema"
)

// Registry converts the endpoint entries into a callpath registry.
func (c *Config) Registry() (callpath.Registry, error) {
	reg := make(callpath.Registry, len(c.Endpoints))
	for _, key := range c.endpointKeys() {
		ep, err := c.Endpoints[key].Endpoint()
		if err != nil {
			return nil, fmt.Errorf("endpoints.%s: %w", key, err)
		}
		reg[key] = ep
	}
	return reg, nil
}

func (c *Config) endpointKeys() []string {
	keys := make([]string, 0, len(c.Endpoints))
	for k := range c.Endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Endpoint converts one entry into a descriptor.
func (e EndpointConfig) Endpoint() (callpath.Endpoint, error) {
	method, err := callpath.ParseMethod(e.Method)
	if err != nil {
		return callpath.Endpoint{}, fmt.Errorf("method: %w", err)
	}
	in, err := e.Input.input()
	if err != nil {
		return callpath.Endpoint{}, fmt.Errorf("input.%w", err)
	}
	resp, err := e.Response.response()
	if err != nil {
		return callpath.Endpoint{}, fmt.Errorf("response: %w", err)
	}
	return callpath.Endpoint{
		Method:   method,
		Path:     e.Path,
		Prefix:   e.Prefix,
		Input:    in,
		Response: resp,
	}, nil
}

func (in InputConfig) input() (callpath.Input, error) {
	var out callpath.Input
	var err error
	if out.Query, err = validatorFor(in.Query); err != nil {
		return out, fmt.Errorf("query: %w", err)
	}
	if out.Param, err = validatorFor(in.Params); err != nil {
		return out, fmt.Errorf("params: %w", err)
	}
	if out.JSON, err = validatorFor(in.JSON); err != nil {
		return out, fmt.Errorf("json: %w", err)
	}
	if out.Form, err = validatorFor(in.Form); err != nil {
		return out, fmt.Errorf("form: %w", err)
	}
	return out, nil
}

func (r ResponseConfig) response() (callpath.Response, error) {
	v, err := validatorFor(r.Type)
	if err != nil {
		return callpath.Response{}, fmt.Errorf("type: %w", err)
	}

	switch strings.ToLower(r.Kind) {
	case "", "json":
		return callpath.JSON(v), nil
	case "text":
		return callpath.Text(schema.String()), nil
	case "none":
		return callpath.NoContent(), nil
	case "ndjson":
		return callpath.NDJSON(v), nil
	case "binary":
		return callpath.Binary(r.ContentType), nil
	case "sse":
		events := make(map[string]callpath.EventSchema, len(r.Events))
		for name, kind := range r.Events {
			switch kind {
			case "", "json":
				events[name] = callpath.JSONEvent(schema.Any())
			case "text":
				events[name] = callpath.TextEvent(schema.String())
			default:
				return callpath.Response{}, fmt.Errorf("event %s: unknown kind %q", name, kind)
			}
		}
		return callpath.SSE(events), nil
	}
	return callpath.Response{}, fmt.Errorf("unknown kind %q", r.Kind)
}

// validatorFor maps a manifest type name to a validator. An empty name
// means no validator.
func validatorFor(typ string) (schema.Validator, error) {
	switch typ {
	case "":
		return nil, nil
	case "any":
		return schema.Any(), nil
	case "string":
		return schema.String(), nil
	case "number":
		return schema.Number(), nil
	case "integer":
		return schema.Integer(), nil
	case "boolean":
		return schema.Bool(), nil
	case "object":
		return schema.Map(schema.Any()), nil
	case "array":
		return schema.Array(schema.Any()), nil
	}
	return nil, fmt.Errorf("unknown type %q", typ)
}
