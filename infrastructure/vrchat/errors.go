package vrchat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// RequestFailedError means no usable response was obtained: the transport
// failed or every attempt hit a rate limit or server error.
type RequestFailedError struct {
	Method     string
	Path       string
	Attempts   int
	LastStatus int
	Err        error
}

func (e *RequestFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vrchat request %s %s failed after %d attempts: %v", e.Method, e.Path, e.Attempts, e.Err)
	}
	return fmt.Sprintf("vrchat request %s %s failed after %d attempts: last status %d", e.Method, e.Path, e.Attempts, e.LastStatus)
}

func (e *RequestFailedError) Unwrap() error { return e.Err }

func (e *RequestFailedError) ErrCode() string { return "REQUEST_FAILED" }

func (e *RequestFailedError) StatusCode() int { return http.StatusBadGateway }

// APIError is a well-formed non-2xx answer; Message is the remote text verbatim.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) ErrCode() string { return "VRCHAT_API_ERROR" }

func (e *APIError) StatusCode() int {
	if e.Status >= 400 && e.Status < 500 {
		return e.Status
	}
	return http.StatusBadGateway
}

type errorEnvelope struct {
	Error struct {
		Message    string `json:"message"`
		StatusCode int    `json:"status_code"`
	} `json:"error"`
}

func decodeAPIError(status int, body []byte) *APIError {
	var env errorEnvelope
	msg := ""
	if err := json.Unmarshal(body, &env); err == nil {
		msg = strings.Trim(strings.TrimSpace(env.Error.Message), `"`)
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}
