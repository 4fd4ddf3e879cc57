package handler

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Envelope is the JSON body shape for every API response.
type Envelope struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
	Meta    map[string]any      `json:"meta,omitempty"`
}

type jsonResponse struct {
	status int
	body   Envelope
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSON renders data with status 200.
func JSON(data any) Response {
	return jsonResponse{status: http.StatusOK, body: Envelope{Data: data}}
}

// JSONWithStatus renders data with the given status.
func JSONWithStatus(status int, data any) Response {
	return jsonResponse{status: status, body: Envelope{Data: data}}
}

// JSONError renders err as an error envelope. HTTPError and
// ValidationError decide the status; anything else is a 500 without the
// raw error text.
func JSONError(err error) Response {
	status, detail := errorToDetail(err)
	return jsonResponse{status: status, body: Envelope{Error: &detail}}
}

// JSONErrorWithMeta is JSONError with extra structured fields.
func JSONErrorWithMeta(err error, meta map[string]any) Response {
	status, detail := errorToDetail(err)
	detail.Meta = meta
	return jsonResponse{status: status, body: Envelope{Error: &detail}}
}

func errorToDetail(err error) (int, ErrorDetail) {
	var validationErr ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, ErrorDetail{
			Code:    "validation_failed",
			Message: "validation failed",
			Details: validationErr,
		}
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		detail := ErrorDetail{Code: httpErr.Code, Details: httpErr.Details}
		if httpErr.Status < http.StatusInternalServerError && httpErr.Cause != nil {
			detail.Message = httpErr.Cause.Error()
		}
		return httpErr.Status, detail
	}

	return http.StatusInternalServerError, ErrorDetail{Code: ErrInternalServerError.Code}
}
