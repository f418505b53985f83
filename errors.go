package callpath

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/broady/callpath/schema"
)

// ErrorCode represents a machine-readable error code.
type ErrorCode string

const (
	CodeInvalidArgument   ErrorCode = "invalid_argument"
	CodeUnauthenticated   ErrorCode = "unauthenticated"
	CodePermissionDenied  ErrorCode = "permission_denied"
	CodeNotFound          ErrorCode = "not_found"
	CodeMethodNotAllowed  ErrorCode = "method_not_allowed"
	CodeConflict          ErrorCode = "conflict"
	CodeAlreadyExists     ErrorCode = "already_exists" // Alias for conflict, used when resource already exists
	CodeGone              ErrorCode = "gone"
	CodeResourceExhausted ErrorCode = "resource_exhausted"
	CodeCanceled          ErrorCode = "canceled"
	CodeInternal          ErrorCode = "internal"
	CodeNotImplemented    ErrorCode = "not_implemented"
	CodeUnavailable       ErrorCode = "unavailable"
	CodeDeadlineExceeded  ErrorCode = "deadline_exceeded"
	CodeUnknown           ErrorCode = "unknown"
)

// HTTPStatus maps an ErrorCode to an HTTP status code.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeConflict, CodeAlreadyExists:
		return http.StatusConflict
	case CodeGone:
		return http.StatusGone
	case CodeResourceExhausted:
		return http.StatusTooManyRequests
	case CodeCanceled:
		return 499 // Client Closed Request (Nginx standard)
	case CodeNotImplemented:
		return http.StatusNotImplemented
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// CodeForStatus is the inverse of [ErrorCode.HTTPStatus].
// Statuses without a dedicated code map to CodeInternal (5xx) or
// CodeUnknown (anything else).
func CodeForStatus(status int) ErrorCode {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeInvalidArgument
	case http.StatusUnauthorized:
		return CodeUnauthenticated
	case http.StatusForbidden:
		return CodePermissionDenied
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusMethodNotAllowed:
		return CodeMethodNotAllowed
	case http.StatusConflict:
		return CodeConflict
	case http.StatusGone:
		return CodeGone
	case http.StatusTooManyRequests:
		return CodeResourceExhausted
	case 499:
		return CodeCanceled
	case http.StatusNotImplemented:
		return CodeNotImplemented
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return CodeUnavailable
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return CodeDeadlineExceeded
	}
	if status >= 500 {
		return CodeInternal
	}
	return CodeUnknown
}

// Precondition failures. They are returned as the call's error, never
// inside a [Result], and are detected with errors.Is.
var (
	ErrMissingParam    = errors.New("missing path parameter")
	ErrUnknownRoute    = errors.New("unknown route")
	ErrBodyNotAllowed  = errors.New("request body not allowed for GET")
	ErrConflictingBody = errors.New("json and form bodies are mutually exclusive")
)

// NetworkError reports that the transport never produced a response:
// connection failures, aborts and timeouts. It is always returned as the
// call's error, since there is no response to attach a result to.
type NetworkError struct {
	Call    *CallContext
	Err     error
	Timeout bool
}

func (e *NetworkError) Error() string {
	what := "network error"
	if e.Timeout {
		what = "network timeout"
	}
	if e.Call != nil {
		return fmt.Sprintf("%s: %s: %v", what, e.Call, e.Err)
	}
	return fmt.Sprintf("%s: %v", what, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// classifyTransportError wraps a transport failure in a NetworkError.
// Cancellation and deadlines, from the call's context or from the
// transport itself, are reported with Timeout set.
func classifyTransportError(ctx context.Context, call *CallContext, err error) *NetworkError {
	timeout := errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() != nil
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &NetworkError{Call: call, Err: err, Timeout: timeout}
}

// APIError reports that a response was obtained but indicates failure:
// a non-2xx status, or a 2xx body that could not be decoded.
// It is carried in [Result].Err rather than returned as an error.
type APIError struct {
	Call    *CallContext
	Status  int
	Code    ErrorCode
	Message string
	// Body is the decoded error body: JSON value, text, or nil.
	Body any
	// Err is the decode failure of a 2xx body, if that is the cause.
	Err error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

func newAPIError(call *CallContext, status int, message string, body any) *APIError {
	return &APIError{
		Call:    call,
		Status:  status,
		Code:    CodeForStatus(status),
		Message: message,
		Body:    body,
	}
}

// ValidationError is an APIError whose value decoded but failed schema
// validation, on the way out (request data) or on the way in (response
// data). errors.As with *APIError also matches it.
type ValidationError struct {
	APIError
	Issues schema.Issues
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Issues.Error())
}

func (e *ValidationError) Unwrap() error { return &e.APIError }

// newValidationError builds a request-side error when status is 0 and a
// response-side one otherwise.
func newValidationError(call *CallContext, status int, message string, err error) *ValidationError {
	code := CodeInvalidArgument
	if status != 0 {
		code = CodeInternal
	}
	return &ValidationError{
		APIError: APIError{
			Call:    call,
			Status:  status,
			Code:    code,
			Message: message,
		},
		Issues: schema.IssuesOf(err),
	}
}
