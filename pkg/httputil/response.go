// Package httputil provides HTTP handler utilities for JSON encoding,
// request parsing, and the uniform error response shape.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the uniform error body returned by every endpoint.
type ErrorResponse struct {
	Error     string      `json:"error"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteErrorBody writes the uniform error body with the given status.
func WriteErrorBody(w http.ResponseWriter, status int, message string, details interface{}, requestID string) {
	WriteJSON(w, status, ErrorResponse{
		Error:     message,
		Details:   details,
		RequestID: requestID,
	})
}

// WriteUnauthorized writes a 401 with the uniform error body.
func WriteUnauthorized(w http.ResponseWriter, requestID string) {
	WriteErrorBody(w, http.StatusUnauthorized, "Unauthorized", nil, requestID)
}
