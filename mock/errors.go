package mock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/broady/callpath"
	"github.com/broady/callpath/schema"
)

// Error is the JSON error envelope written by the mock server. It is the
// shape the client reads codes and messages from.
type Error struct {
	Code    callpath.ErrorCode `json:"code"`
	Message string             `json:"message"`
	Details map[string]any     `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError returns an error answered with code's HTTP status.
func NewError(code callpath.ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf is NewError with a formatted message.
func Errorf(code callpath.ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WithDetail returns a copy of e with key set in its details.
func (e *Error) WithDetail(key string, value any) *Error {
	return e.WithDetails(map[string]any{key: value})
}

// WithDetails returns a copy of e with details merged over its own.
func (e *Error) WithDetails(details map[string]any) *Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(merged, e.Details)
	maps.Copy(merged, details)
	return &Error{Code: e.Code, Message: e.Message, Details: merged}
}

// ErrorTransformer maps a handler error to a service error.
// If it returns nil, [DefaultErrorTransformer] is applied.
type ErrorTransformer func(error) *Error

// sentinels are matched with errors.Is, in order.
var sentinels = []struct {
	err     error
	code    callpath.ErrorCode
	message string
}{
	{context.DeadlineExceeded, callpath.CodeDeadlineExceeded, "request timeout"},
	{context.Canceled, callpath.CodeCanceled, "context canceled"},
	{ErrStreamClosed, callpath.CodeCanceled, "stream closed"},
	{ErrWriteTimeout, callpath.CodeDeadlineExceeded, "write timeout"},
}

// DefaultErrorTransformer maps handler errors to service errors: *Error
// as is, context and stream sentinels, schema issues and validator
// failures as invalid_argument with per-field details. For joined errors
// the first one decides the code. Anything else is internal.
func DefaultErrorTransformer(err error) *Error {
	if err == nil {
		return nil
	}

	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return NewError(s.code, s.message)
		}
	}

	var issues schema.Issues
	if errors.As(err, &issues) {
		details := make(map[string]any, len(issues))
		for _, is := range issues {
			details[strings.Join(is.Path, ".")] = is.Message
		}
		return &Error{Code: callpath.CodeInvalidArgument, Message: issues.Error(), Details: details}
	}

	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) {
		details := make(map[string]any, len(valErrs))
		messages := make([]string, 0, len(valErrs))
		for _, ve := range valErrs {
			msg := formatValidationError(ve)
			details[ve.Field()] = msg
			messages = append(messages, ve.Field()+": "+msg)
		}
		return &Error{Code: callpath.CodeInvalidArgument, Message: strings.Join(messages, "; "), Details: details}
	}

	if u, ok := err.(interface{ Unwrap() []error }); ok {
		if errs := u.Unwrap(); len(errs) > 0 {
			first := DefaultErrorTransformer(errs[0])
			msgs := make([]string, len(errs))
			for i, e := range errs {
				msgs[i] = e.Error()
			}
			return &Error{Code: first.Code, Message: strings.Join(msgs, "; "), Details: first.Details}
		}
	}

	return NewError(callpath.CodeInternal, err.Error())
}

// validationMessages are printf templates taking the tag parameter.
var validationMessages = map[string]string{
	"required": "required",
	"min":      "must be at least %s",
	"max":      "must be at most %s",
	"len":      "must have length %s",
	"email":    "must be a valid email address",
	"url":      "must be a valid URL",
	"uuid":     "must be a valid UUID",
	"oneof":    "must be one of: %s",
}

func formatValidationError(ve validator.FieldError) string {
	if tmpl, ok := validationMessages[ve.Tag()]; ok {
		if strings.Contains(tmpl, "%s") {
			return fmt.Sprintf(tmpl, ve.Param())
		}
		return tmpl
	}
	if ve.Param() != "" {
		return fmt.Sprintf("failed %s=%s validation", ve.Tag(), ve.Param())
	}
	return fmt.Sprintf("failed %s validation", ve.Tag())
}

// transformError applies the configured transformer, falling back to the
// default one, and masks internal messages when asked to.
func (s *Server) transformError(err error) *Error {
	var svcErr *Error
	if s.errorTransformer != nil {
		svcErr = s.errorTransformer(err)
	}
	if svcErr == nil {
		svcErr = DefaultErrorTransformer(err)
	}
	if s.maskInternalErrors && svcErr.Code == callpath.CodeInternal {
		svcErr = &Error{Code: svcErr.Code, Message: "internal server error"}
	}
	return svcErr
}

func writeError(w http.ResponseWriter, svcErr *Error, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.Code.HTTPStatus())
	if err := encodeErrorResponse(w, svcErr); err != nil {
		// Headers already sent, nothing we can do.
		logger.Error("failed to encode error response",
			slog.String("code", string(svcErr.Code)),
			slog.String("message", svcErr.Message),
			slog.Any("error", err))
	}
}
