package callpath

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elnormous/contenttype"
)

// Empty is the decoded value of a response without content.
type Empty struct{}

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 1 << 20

// isText reports whether the Content-Type header names a text/* type.
func isText(h http.Header) bool {
	ct := h.Get("Content-Type")
	if ct == "" {
		return false
	}
	return contenttype.NewMediaType(ct).Type == "text"
}

// decodeBody reads a successful scalar response according to the declared
// shape: text for text/* content or a text response, [Empty] for 204 or a
// response without content, JSON otherwise.
func decodeBody(resp *http.Response, shape Response) (any, error) {
	if resp.StatusCode == http.StatusNoContent || shape.Kind == KindNoContent {
		return Empty{}, nil
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if shape.Kind == KindText || isText(resp.Header) {
		return string(b), nil
	}

	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

// decodeErrorBody reads a failed response. It returns the decoded body
// (JSON value, text, or nil) and the best available message.
func decodeErrorBody(resp *http.Response) (any, string) {
	fallback := http.StatusText(resp.StatusCode)
	if fallback == "" {
		fallback = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(b) == 0 {
		return nil, fallback
	}

	var v any
	if err := json.Unmarshal(b, &v); err == nil {
		if msg := errorMessage(v); msg != "" {
			return v, msg
		}
		return v, fallback
	}

	text := strings.TrimSpace(string(b))
	if text == "" {
		return nil, fallback
	}
	return text, text
}

// errorMessage finds a message in a JSON error body. It understands
// {"error":{"message":...}}, {"message":...} and {"error":"..."}.
func errorMessage(v any) string {
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	if inner, ok := obj["error"].(map[string]any); ok {
		if msg, ok := inner["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if msg, ok := obj["message"].(string); ok && msg != "" {
		return msg
	}
	if msg, ok := obj["error"].(string); ok && msg != "" {
		return msg
	}
	return ""
}

// errorCode returns the code of an {"error":{"code":...}} envelope body.
func errorCode(v any) ErrorCode {
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	inner, ok := obj["error"].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := inner["code"].(string)
	return ErrorCode(code)
}
