package broker

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMissingCredentials indicates the client was constructed without an API
// key/secret. Distinguished from a provider rejection so callers can tell
// "fix your config" apart from "fix your credentials".
var ErrMissingCredentials = errors.New("broker API credentials are not configured")

// APIError is a non-2xx response from the broker, keeping the provider's own
// message and raw body for diagnostics.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("broker API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("broker API error (status %d)", e.StatusCode)
}

// IsEmailTaken reports whether the error is the broker's "an account with
// this email address already exists" rejection, which triggers the
// search-by-email recovery path instead of a hard failure.
func (e *APIError) IsEmailTaken() bool {
	m := strings.ToLower(e.Message + " " + e.Body)
	return strings.Contains(m, "already exists") || strings.Contains(m, "email address")
}

// IsNotFound reports whether err is a broker 404, used to fall back from the
// trading-account endpoint to the general account endpoint.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
