package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/broady/callpath"
)

// Validate checks the configuration for required fields and valid values.
// Endpoint entries are converted and built into a call tree, so route
// conflicts are reported here.
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Client.BaseURL); err != nil || !u.IsAbs() {
		errs = append(errs, fmt.Errorf("client.base_url must be an absolute URL, got %q", c.Client.BaseURL))
	}
	if c.Client.Timeout < 0 {
		errs = append(errs, fmt.Errorf("client.timeout must be >= 0, got %v", c.Client.Timeout))
	}
	if c.Mock.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("mock.heartbeat must be >= 0, got %v", c.Mock.Heartbeat))
	}
	if c.Mock.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("mock.write_timeout must be >= 0, got %v", c.Mock.WriteTimeout))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format))
	}

	for _, key := range c.endpointKeys() {
		ep := c.Endpoints[key]
		if ep.Example != nil && len(ep.Examples) > 0 {
			errs = append(errs, fmt.Errorf("endpoints.%s: example and examples are mutually exclusive", key))
		}
	}

	reg, err := c.Registry()
	if err != nil {
		errs = append(errs, err)
	} else if _, err := callpath.Build(reg); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
