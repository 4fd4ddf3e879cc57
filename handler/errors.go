package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrNilResponse indicates a handler returned nil instead of a Response.
var ErrNilResponse = errors.New("handler returned nil response")

// HTTPError pairs an HTTP status with a stable machine-readable code. The
// wrapped cause, if any, supplies the human message.
type HTTPError struct {
	Status  int
	Code    string
	Cause   error
	Details map[string][]string
}

func (e HTTPError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Code
}

func (e HTTPError) Unwrap() error { return e.Cause }

// NewHTTPError wraps cause with an HTTP status and error code.
func NewHTTPError(status int, code string, cause error) HTTPError {
	return HTTPError{Status: status, Code: code, Cause: cause}
}

// BadRequest marks err as a malformed request.
func BadRequest(err error) error {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return err
	}
	return HTTPError{Status: http.StatusBadRequest, Code: "bad_request", Cause: err}
}

var (
	ErrNotFound            = HTTPError{Status: http.StatusNotFound, Code: "not_found"}
	ErrInternalServerError = HTTPError{Status: http.StatusInternalServerError, Code: "internal_server_error"}
)

// ValidationError maps field names to validation messages.
type ValidationError url.Values

func (e ValidationError) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e))
	for field, messages := range e {
		if len(messages) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", field, messages[0]))
		}
	}
	return "validation error: " + strings.Join(parts, ", ")
}

// Add appends a message for field.
func (e ValidationError) Add(field, message string) {
	url.Values(e).Add(field, message)
}

// IsEmpty reports whether no field failed.
func (e ValidationError) IsEmpty() bool { return len(e) == 0 }
