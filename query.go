package callpath

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strconv"

	formschema "github.com/gorilla/schema"
)

var queryEncoder = func() *formschema.Encoder {
	enc := formschema.NewEncoder()
	enc.SetAliasTag("json")
	return enc
}()

// EncodeQuery serializes query data.
//
// Maps follow these rules: scalar values become key=value, slices become
// repeated key=value entries in slice order, and map values become
// key[sub]=value per entry. Nil values are skipped. Deeper nesting is
// rejected.
//
// url.Values are used as given. Structs are encoded with their json field
// names.
func EncodeQuery(q any) (url.Values, error) {
	switch q := q.(type) {
	case nil:
		return nil, nil
	case url.Values:
		return q, nil
	case map[string][]string:
		return url.Values(q), nil
	case map[string]string:
		vals := make(url.Values, len(q))
		for k, v := range q {
			vals.Set(k, v)
		}
		return vals, nil
	case map[string]any:
		vals := make(url.Values, len(q))
		for k, v := range q {
			if err := addQueryValue(vals, k, v, 0); err != nil {
				return nil, err
			}
		}
		return vals, nil
	}

	rv := reflect.ValueOf(q)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		vals := make(url.Values)
		if err := queryEncoder.Encode(rv.Interface(), vals); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		return vals, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		vals := make(url.Values, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			if err := addQueryValue(vals, iter.Key().String(), iter.Value().Interface(), 0); err != nil {
				return nil, err
			}
		}
		return vals, nil
	}
	return nil, fmt.Errorf("query: unsupported type %T", q)
}

func addQueryValue(vals url.Values, key string, v any, depth int) error {
	if v == nil {
		return nil
	}
	if s, ok := scalarString(v); ok {
		vals.Add(key, s)
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return addQueryValue(vals, key, rv.Elem().Interface(), depth)
	case reflect.Slice, reflect.Array:
		for i := range rv.Len() {
			s, ok := scalarString(rv.Index(i).Interface())
			if !ok {
				return fmt.Errorf("query: %s[%d]: unsupported element %T", key, i, rv.Index(i).Interface())
			}
			vals.Add(key, s)
		}
		return nil
	case reflect.Map:
		if depth > 0 {
			return fmt.Errorf("query: %s: nested objects deeper than one level are not supported", key)
		}
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("query: %s: map keys must be strings", key)
		}
		iter := rv.MapRange()
		for iter.Next() {
			sub := key + "[" + iter.Key().String() + "]"
			if err := addQueryValue(vals, sub, iter.Value().Interface(), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("query: %s: unsupported value %T", key, v)
}

func scalarString(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case fmt.Stringer:
		return v.String(), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.String:
		return rv.String(), true
	}
	return "", false
}
