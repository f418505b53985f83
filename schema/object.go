package schema

import (
	"sort"
	"strconv"
)

// Fields maps object keys to their validators.
type Fields map[string]Validator

type objectValidator struct {
	fields Fields
	strict bool
}

func (o objectValidator) Validate(value any) (any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, issuef(nil, "expected object, got "+kindOf(value))
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, known := o.fields[k]; !known {
			if o.strict {
				return nil, issuef([]string{k}, "unknown field")
			}
			out[k] = v
		}
	}

	keys := make([]string, 0, len(o.fields))
	for k := range o.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var issues Issues
	for _, k := range keys {
		got, err := Run(o.fields[k], m[k])
		if err != nil {
			issues = append(issues, prefix(k, err)...)
			continue
		}
		if got != nil {
			out[k] = got
		} else if _, present := m[k]; present {
			out[k] = nil
		}
	}
	if len(issues) > 0 {
		return nil, issues
	}
	return out, nil
}

// Object accepts JSON objects whose listed fields satisfy their validators.
// Fields missing from the value are validated as nil, so wrap optional
// fields with [Optional]. Unlisted fields are passed through.
func Object(fields Fields) Validator { return objectValidator{fields: fields} }

// StrictObject is like [Object] but rejects unlisted fields.
func StrictObject(fields Fields) Validator { return objectValidator{fields: fields, strict: true} }

type arrayValidator struct{ item Validator }

func (a arrayValidator) Validate(value any) (any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, issuef(nil, "expected array, got "+kindOf(value))
	}
	out := make([]any, len(items))
	var issues Issues
	for i, item := range items {
		got, err := Run(a.item, item)
		if err != nil {
			issues = append(issues, prefix(strconv.Itoa(i), err)...)
			continue
		}
		out[i] = got
	}
	if len(issues) > 0 {
		return nil, issues
	}
	return out, nil
}

// Array accepts JSON arrays whose items satisfy item.
func Array(item Validator) Validator { return arrayValidator{item: item} }

type mapValidator struct{ value Validator }

func (mv mapValidator) Validate(value any) (any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, issuef(nil, "expected object, got "+kindOf(value))
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(m))
	var issues Issues
	for _, k := range keys {
		got, err := Run(mv.value, m[k])
		if err != nil {
			issues = append(issues, prefix(k, err)...)
			continue
		}
		out[k] = got
	}
	if len(issues) > 0 {
		return nil, issues
	}
	return out, nil
}

// Map accepts JSON objects with arbitrary keys whose values satisfy value.
func Map(value Validator) Validator { return mapValidator{value: value} }
