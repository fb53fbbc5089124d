package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx backend answer.
type APIError struct {
	Status  int
	Body    any
	Message string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// HTTPStatusCode exposes the status for generic status checks.
func (e *APIError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.Status
}

func newAPIError(resp *Response) *APIError {
	var body any
	if resp.IsJSON() {
		_ = json.Unmarshal(resp.Body, &body)
	} else if len(resp.Body) > 0 {
		body = string(resp.Body)
	}
	return &APIError{Status: resp.Status, Body: body, Message: resolveMessage(resp.Status, body)}
}

func resolveMessage(status int, body any) string {
	if m, ok := body.(map[string]any); ok {
		for _, key := range []string{"error", "message"} {
			if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(fmt.Sprintf("%d %s", status, http.StatusText(status)))
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports a 401 APIError.
func IsUnauthorized(err error) bool { return StatusOf(err) == http.StatusUnauthorized }

// IsNotFound reports a 404 APIError.
func IsNotFound(err error) bool { return StatusOf(err) == http.StatusNotFound }

// ErrorFromResponse converts a non-2xx raw response into an APIError.
func ErrorFromResponse(resp *Response) *APIError { return newAPIError(resp) }
