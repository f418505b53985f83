package callpath

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"reflect"
	"sort"

	"github.com/gabriel-vasile/mimetype"
)

// FormFile is a file part of a multipart form.
// An empty ContentType is detected from Data.
type FormFile struct {
	Name        string
	Data        []byte
	ContentType string
}

// encodeJSON serializes a JSON request body.
func encodeJSON(v any) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json body: %w", err)
	}
	return b, nil
}

// encodeForm builds a multipart body from form and returns it with its
// content type. Fields are written in sorted order. Slice values become
// repeated parts; FormFile values become file parts; any other value is
// written as its string form, or as JSON when it has no scalar form.
func encodeForm(form map[string]any) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := writeFormValue(w, k, form[k]); err != nil {
			return nil, "", fmt.Errorf("encode form field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeFormValue(w *multipart.Writer, key string, v any) error {
	switch v := v.(type) {
	case nil:
		return nil
	case FormFile:
		return writeFormFile(w, key, v)
	case *FormFile:
		if v == nil {
			return nil
		}
		return writeFormFile(w, key, *v)
	case []byte:
		return writeFormFile(w, key, FormFile{Name: key, Data: v})
	}

	if s, ok := scalarString(v); ok {
		return w.WriteField(key, s)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := range rv.Len() {
			if err := writeFormValue(w, key, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.WriteField(key, string(b))
}

func writeFormFile(w *multipart.Writer, key string, f FormFile) error {
	name := f.Name
	if name == "" {
		name = key
	}
	ct := f.ContentType
	if ct == "" {
		ct = mimetype.Detect(f.Data).String()
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, key, name))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(f.Data)
	return err
}
