package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// ConfigEnv names the environment variable consulted when no path is given.
const ConfigEnv = "CALLPATH_CONFIG"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML manifest (explicit path, CALLPATH_CONFIG env, ./callpath.yaml)
//  3. CALLPATH_* environment variables
//  4. Validation
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path = discoverConfigFile(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// Parse decodes a manifest over the defaults and validates it.
// The environment is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := decodeYAML(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// decodeYAML rejects unknown fields, so a misspelt key fails loudly.
// Fields not present in the YAML keep their current values.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// discoverConfigFile returns the explicit path, then $CALLPATH_CONFIG,
// then ./callpath.yaml if it exists, or "" for defaults only.
func discoverConfigFile(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv(ConfigEnv); env != "" {
		return env
	}
	if _, err := os.Stat("callpath.yaml"); err == nil {
		return "callpath.yaml"
	}
	return ""
}

// applyEnvOverrides decodes the env tags over cfg. Unset variables leave
// fields untouched.
func applyEnvOverrides(cfg *Config) error {
	err := envdecode.Decode(cfg)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}
