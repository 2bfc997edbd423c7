package pterodactyl

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound matches APIErrors with a 404 status.
var ErrNotFound = errors.New("pterodactyl: resource not found")

// ErrorDetail is a single entry of the panel error envelope.
type ErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIError is a non-2xx response from the panel.
type APIError struct {
	StatusCode int
	Errors     []ErrorDetail
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var envelope struct {
		Errors []ErrorDetail `json:"errors"`
	}
	if len(body) > 0 && json.Unmarshal(body, &envelope) == nil {
		apiErr.Errors = envelope.Errors
	}
	return apiErr
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("pterodactyl: HTTP %d", e.StatusCode)

	details := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		switch {
		case d.Detail != "":
			details = append(details, d.Detail)
		case d.Code != "":
			details = append(details, d.Code)
		}
	}
	if len(details) == 0 {
		return msg + ": " + http.StatusText(e.StatusCode)
	}
	return msg + ": " + strings.Join(details, "; ")
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsClientError reports whether err is a 4xx panel response.
func IsClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// IsServerError reports whether err is a 5xx panel response.
func IsServerError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 500
}

// isRefusal reports whether the panel rejected a key creation request on its
// merits. Authentication and rate limit failures are not refusals.
func isRefusal(err error) bool {
	if !IsClientError(err) {
		return false
	}
	var apiErr *APIError
	errors.As(err, &apiErr)
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return false
	}
	return true
}
