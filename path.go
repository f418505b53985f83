package callpath

import (
	"fmt"
	"net/url"
	"strings"
)

// SegmentKind distinguishes literal path segments from parametric ones.
type SegmentKind int

const (
	ResourceSegment SegmentKind = iota
	ParamSegment
)

// Segment is one element of a path template.
type Segment struct {
	Kind SegmentKind
	Name string
}

func (s Segment) String() string {
	if s.Kind == ParamSegment {
		return ":" + s.Name
	}
	return s.Name
}

// Template is a parsed path template such as "/users/:id/posts".
type Template []Segment

// ParseTemplate splits path on "/" after trimming leading and trailing
// slashes. Segments starting with ":" are parameters. The root path "/"
// yields an empty template.
func ParseTemplate(path string) (Template, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return Template{}, nil
	}

	parts := strings.Split(trimmed, "/")
	tmpl := make(Template, 0, len(parts))
	seen := make(map[string]bool)
	for _, part := range parts {
		seg := Segment{Kind: ResourceSegment, Name: part}
		if strings.HasPrefix(part, ":") {
			seg = Segment{Kind: ParamSegment, Name: part[1:]}
		}
		if seg.Name == "" {
			return nil, fmt.Errorf("path %q: empty segment", path)
		}
		if strings.ContainsAny(seg.Name, "?#:") {
			return nil, fmt.Errorf("path %q: invalid segment %q", path, part)
		}
		if seg.Kind == ParamSegment {
			if seen[seg.Name] {
				return nil, fmt.Errorf("path %q: duplicate parameter %q", path, seg.Name)
			}
			seen[seg.Name] = true
		}
		tmpl = append(tmpl, seg)
	}
	return tmpl, nil
}

// Params returns the parameter names in template order.
func (t Template) Params() []string {
	var names []string
	for _, seg := range t {
		if seg.Kind == ParamSegment {
			names = append(names, seg.Name)
		}
	}
	return names
}

// String renders the template with a leading slash.
func (t Template) String() string {
	parts := make([]string, len(t))
	for i, seg := range t {
		parts[i] = seg.String()
	}
	return "/" + strings.Join(parts, "/")
}

// Expand substitutes every parameter from values. Values are path-escaped.
// A parameter without a value fails with ErrMissingParam.
func (t Template) Expand(values map[string]string) (string, error) {
	parts := make([]string, len(t))
	for i, seg := range t {
		if seg.Kind == ResourceSegment {
			parts[i] = seg.Name
			continue
		}
		v, ok := values[seg.Name]
		if !ok {
			return "", fmt.Errorf("%w %q in %s", ErrMissingParam, seg.Name, t)
		}
		parts[i] = url.PathEscape(v)
	}
	return "/" + strings.Join(parts, "/"), nil
}

// normalizePrefix returns prefix with one leading slash and no trailing one.
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}
