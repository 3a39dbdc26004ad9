// Package provider picks an upstream LLM provider for a request, builds the
// provider-specific HTTP call and normalizes the provider's reply.
//
// Each provider is an Adapter with its own strongly typed wire shapes. The
// Selector holds the adapters in a fixed-order rule list, so classification
// precedence is data rather than nested conditionals. The Invoker executes
// a CallSpec exactly once and folds every outcome into a Result.
package provider

import (
	"net/http"
	"net/url"
)

// Kind tags which provider variant a CallSpec targets.
type Kind int

const (
	KindGemini Kind = iota
	KindOpenRouter
	KindDeepSeek
	KindGroq
)

// String returns the provider tag used in error messages and logs.
func (k Kind) String() string {
	switch k {
	case KindGemini:
		return "Gemini"
	case KindOpenRouter:
		return "OpenRouter"
	case KindDeepSeek:
		return "DeepSeek"
	case KindGroq:
		return "Groq"
	default:
		return "Unknown"
	}
}

// Adapter is implemented by every provider variant.
type Adapter interface {
	// Kind identifies the variant.
	Kind() Kind

	// NewRequest applies the provider's model and sampling defaults to the
	// caller's model id, instruction and text.
	NewRequest(modelID, instruction, userText string) Request

	// Build serializes a Request into the provider's wire format.
	Build(req Request) (*CallSpec, error)

	// ExtractText decodes a 200 response body and returns the completion
	// text, or the provider's fallback string when the text is absent.
	// A non-nil error means the body was not the expected JSON shape.
	ExtractText(body []byte) (string, error)
}

// ---------------------------------------------------------------------------
// Unified request / call types
// ---------------------------------------------------------------------------

// Request is the provider-neutral shape produced before serialization.
type Request struct {
	Model             string
	SystemInstruction string
	UserText          string
	Temperature       float64
	MaxTokens         int // 0 means "not sent"
}

// CallSpec is a fully built upstream call, ready for the Invoker.
type CallSpec struct {
	Provider     Kind
	Method       string
	URL          string
	EndpointHost string
	EndpointPath string // path plus query string
	Headers      http.Header
	Body         []byte
	Request      Request

	adapter Adapter
}

// RedactedURL returns the call URL with the "key" query parameter masked,
// suitable for logging.
func (c *CallSpec) RedactedURL() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return c.EndpointHost
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// newCallSpec fills the endpoint fields from a full URL.
func newCallSpec(a Adapter, rawURL string, headers http.Header, body []byte, req Request) (*CallSpec, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &CallSpec{
		Provider:     a.Kind(),
		Method:       http.MethodPost,
		URL:          rawURL,
		EndpointHost: u.Host,
		EndpointPath: u.RequestURI(),
		Headers:      headers,
		Body:         body,
		Request:      req,
		adapter:      a,
	}, nil
}

// ---------------------------------------------------------------------------
// Unified result type
// ---------------------------------------------------------------------------

// Result is the normalized outcome of one upstream call.
type Result struct {
	Success      bool
	Text         string
	ErrorMessage string
	HTTPStatus   int   // 0 when no HTTP response was received
	Err          error // *TransportError or *UpstreamError when !Success
}
