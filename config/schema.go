package config

import (
	"github.com/invopop/jsonschema"
)

// JSONSchema reflects the manifest format, keyed by YAML field names.
func JSONSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	s := r.Reflect(&Config{})
	s.Title = "callpath manifest"
	return s
}

// JSONSchemaExtend documents durations as strings, the form YAML and the
// environment accept.
func (ClientConfig) JSONSchemaExtend(s *jsonschema.Schema) {
	durationProperty(s, "timeout")
}

// JSONSchemaExtend implements the Reflector hook, see [ClientConfig.JSONSchemaExtend].
func (MockConfig) JSONSchemaExtend(s *jsonschema.Schema) {
	durationProperty(s, "heartbeat")
	durationProperty(s, "write_timeout")
}

func durationProperty(s *jsonschema.Schema, name string) {
	if s.Properties == nil {
		return
	}
	if p, ok := s.Properties.Get(name); ok {
		p.Type = "string"
		p.Pattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`
		p.Description = "Go duration, e.g. 30s"
	}
}
