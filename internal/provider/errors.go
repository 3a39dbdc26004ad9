package provider

import (
	"errors"
	"fmt"
)

// Client-facing messages. Upstream API errors carry the raw body instead.
const (
	msgNetworkError = "Network error calling AI provider"
	msgParseError   = "Error parsing AI response"
)

// errNullBody marks a 200 response whose body is the JSON literal null.
var errNullBody = errors.New("response body is null")

// TransportError means no HTTP response came back (DNS, refused
// connection, TLS, cancelled context).
type TransportError struct {
	Provider Kind
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, msgNetworkError, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError means the provider answered but not usefully: either a
// non-200 status (Body holds the raw response) or a 200 whose body could
// not be decoded (ParseErr is set).
type UpstreamError struct {
	Provider   Kind
	StatusCode int
	Body       string
	ParseErr   error
}

func (e *UpstreamError) Error() string {
	if e.ParseErr != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, msgParseError, e.ParseErr)
	}
	return fmt.Sprintf("%s API Error: %s", e.Provider, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.ParseErr }
