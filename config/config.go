// Package config loads callpath manifests: the client and mock server
// settings together with the endpoint registry, from YAML with
// environment overrides.
package config

import (
	"time"
)

// Config is the top-level manifest.
type Config struct {
	Client    ClientConfig              `yaml:"client"`
	Mock      MockConfig                `yaml:"mock"`
	Log       LogConfig                 `yaml:"log"`
	Endpoints map[string]EndpointConfig `yaml:"endpoints" jsonschema:"required"`
}

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	BaseURL string            `yaml:"base_url" env:"CALLPATH_BASE_URL"`
	Timeout time.Duration     `yaml:"timeout" env:"CALLPATH_TIMEOUT"`
	Headers map[string]string `yaml:"headers"`
}

// MockConfig configures the mock server.
type MockConfig struct {
	Addr         string        `yaml:"addr" env:"CALLPATH_MOCK_ADDR"`
	Heartbeat    time.Duration `yaml:"heartbeat" env:"CALLPATH_MOCK_HEARTBEAT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"CALLPATH_MOCK_WRITE_TIMEOUT"`
	MaxBodySize  uint64        `yaml:"max_body_size" env:"CALLPATH_MOCK_MAX_BODY_SIZE"`
	CORS         bool          `yaml:"cors" env:"CALLPATH_MOCK_CORS"`
	// MetricsPath serves Prometheus metrics when set, e.g. "/metrics".
	MetricsPath string `yaml:"metrics_path" env:"CALLPATH_MOCK_METRICS_PATH"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"CALLPATH_LOG_LEVEL" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `yaml:"format" env:"CALLPATH_LOG_FORMAT" jsonschema:"enum=text,enum=json"`
}

// EndpointConfig is one registry entry.
type EndpointConfig struct {
	Method   string         `yaml:"method" jsonschema:"required"`
	Path     string         `yaml:"path" jsonschema:"required"`
	Prefix   string         `yaml:"prefix,omitempty"`
	Input    InputConfig    `yaml:"input,omitempty"`
	Response ResponseConfig `yaml:"response"`
	// Example is served by the mock for scalar endpoints.
	Example any `yaml:"example,omitempty"`
	// Examples are streamed in order by the mock for streaming endpoints.
	Examples []any `yaml:"examples,omitempty"`
}

// InputConfig names the value type accepted in each request slot.
// An empty type leaves the slot unchecked.
type InputConfig struct {
	Query  string `yaml:"query,omitempty" jsonschema:"enum=any,enum=string,enum=number,enum=integer,enum=boolean,enum=object,enum=array"`
	Params string `yaml:"params,omitempty" jsonschema:"enum=any,enum=object"`
	JSON   string `yaml:"json,omitempty" jsonschema:"enum=any,enum=string,enum=number,enum=integer,enum=boolean,enum=object,enum=array"`
	Form   string `yaml:"form,omitempty" jsonschema:"enum=any,enum=object"`
}

// ResponseConfig describes the response decode grammar.
type ResponseConfig struct {
	Kind string `yaml:"kind" jsonschema:"enum=json,enum=text,enum=none,enum=sse,enum=ndjson,enum=binary"`
	// Type checks JSON bodies and NDJSON items.
	Type string `yaml:"type,omitempty" jsonschema:"enum=any,enum=string,enum=number,enum=integer,enum=boolean,enum=object,enum=array"`
	// Events maps SSE event names to "json" or "text".
	Events      map[string]string `yaml:"events,omitempty"`
	ContentType string            `yaml:"content_type,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Client: ClientConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Mock: MockConfig{
			Addr:         ":8080",
			Heartbeat:    30 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxBodySize:  1 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
