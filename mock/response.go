package mock

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/broady/callpath"
)

// errorResponse is the envelope type for error responses.
// This wraps the error in an {"error": {...}} structure.
type errorResponse struct {
	Error *Error `json:"error"`
}

// encodeErrorResponse writes an error envelope.
func encodeErrorResponse(w io.Writer, err *Error) error {
	return json.NewEncoder(w).Encode(errorResponse{Error: err})
}

// writeResult writes a handler result as the endpoint's declared
// response kind. Success bodies are written bare, without an envelope.
func writeResult(w http.ResponseWriter, shape callpath.Response, result any) error {
	switch shape.Kind {
	case callpath.KindNoContent:
		w.WriteHeader(http.StatusNoContent)
		return nil

	case callpath.KindText:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, err := io.WriteString(w, textOf(result))
		return err
	}

	data, err := marshalJSON(result)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(append(data, '\n'))
	return err
}

// marshalJSON encodes v, passing raw JSON through.
func marshalJSON(v any) ([]byte, error) {
	switch v := v.(type) {
	case json.RawMessage:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return data, nil
}

func textOf(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}
