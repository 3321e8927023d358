package polygon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from polygon.io.
type APIError struct {
	StatusCode int
	Status     string // polygon "status" field, e.g. ERROR or NOT_AUTHORIZED
	RequestID  string
	Message    string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("polygon: API error (status %d, request %s): %s", e.StatusCode, e.RequestID, e.Message)
	}
	return fmt.Sprintf("polygon: API error (status %d): %s", e.StatusCode, e.Message)
}

type errorBody struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

func newAPIError(code int, body []byte) *APIError {
	e := &APIError{StatusCode: code}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		e.Status = eb.Status
		e.RequestID = eb.RequestID
		e.Message = eb.Error
		if e.Message == "" {
			e.Message = eb.Message
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(code)
	}
	return e
}

// IsRateLimited reports whether err is a 429 from polygon.io.
func IsRateLimited(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusTooManyRequests
}
