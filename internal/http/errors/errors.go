// Package errors defines the JSON error surface of the HTTP API.
package errors

import (
	"encoding/json"
	"net/http"
)

// HTTPError is a wire-level error. Detail is safe for clients; anything
// sensitive belongs in the logs, not here.
type HTTPError struct {
	Status int    `json:"-"`
	Code   string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (e HTTPError) Error() string { return e.Code }

// WithDetail returns a copy carrying a client-safe detail string.
func (e HTTPError) WithDetail(d string) HTTPError {
	e.Detail = d
	return e
}

var (
	ErrBadRequest          = HTTPError{Status: http.StatusBadRequest, Code: "bad_request"}
	ErrUnauthorized        = HTTPError{Status: http.StatusUnauthorized, Code: "unauthorized"}
	ErrNotFound            = HTTPError{Status: http.StatusNotFound, Code: "not_found"}
	ErrMethodNotAllowed    = HTTPError{Status: http.StatusMethodNotAllowed, Code: "method_not_allowed"}
	ErrInternalServerError = HTTPError{Status: http.StatusInternalServerError, Code: "internal_error"}
)

// WriteError renders an HTTPError as JSON.
func WriteError(w http.ResponseWriter, e HTTPError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e)
}
