package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/howard-nolan/chatproxy/internal/metrics"
)

// Invoker executes provider calls. Each call is a single attempt: there is
// no retry and no timeout beyond the request context and the client.
type Invoker struct {
	client  *http.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithLogger sets the logger used for upstream failures.
func WithLogger(l *zap.Logger) InvokerOption {
	return func(inv *Invoker) {
		if l != nil {
			inv.log = l
		}
	}
}

// WithMetrics records every call in m.
func WithMetrics(m *metrics.Metrics) InvokerOption {
	return func(inv *Invoker) { inv.metrics = m }
}

// NewInvoker creates an Invoker around an injected client so tests can
// point it at httptest servers or recorded cassettes.
func NewInvoker(client *http.Client, opts ...InvokerOption) *Invoker {
	if client == nil {
		client = http.DefaultClient
	}
	inv := &Invoker{client: client, log: zap.NewNop()}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke sends the call and normalizes the outcome.
//
//   - no response at all        → TransportError, "Network error calling AI provider"
//   - status != 200             → UpstreamError, "<Tag> API Error: <raw body>"
//   - 200, body not decodable   → UpstreamError, "Error parsing AI response"
//   - 200, text missing         → success with the provider's fallback text
func (inv *Invoker) Invoke(ctx context.Context, call *CallSpec) Result {
	start := time.Now()
	res := inv.do(ctx, call)
	inv.metrics.ObserveUpstream(call.Provider.String(), outcome(res), time.Since(start))

	if !res.Success {
		inv.log.Error("upstream call failed",
			zap.String("provider", call.Provider.String()),
			zap.String("url", call.RedactedURL()),
			zap.Int("status", res.HTTPStatus),
			zap.Error(res.Err),
		)
	}
	return res
}

func (inv *Invoker) do(ctx context.Context, call *CallSpec) Result {
	if call.adapter == nil {
		err := fmt.Errorf("call spec for %s was not built by an adapter", call.Provider)
		return Result{ErrorMessage: msgParseError, Err: &UpstreamError{Provider: call.Provider, ParseErr: err}}
	}

	httpReq, err := http.NewRequestWithContext(ctx, call.Method, call.URL, bytes.NewReader(call.Body))
	if err != nil {
		return transportFailure(call.Provider, fmt.Errorf("creating request: %w", err))
	}
	// Clone so the CallSpec stays reusable: the transport may add headers
	// to the request it is given.
	httpReq.Header = call.Headers.Clone()

	// client.Do only returns an error when no response arrived at all
	// (DNS, refused connection, TLS, cancelled context). A 4xx/5xx is a
	// successful Do with a non-200 status and is handled below.
	httpResp, err := inv.client.Do(httpReq)
	if err != nil {
		return transportFailure(call.Provider, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		// The status line arrived but the body did not.
		res := transportFailure(call.Provider, fmt.Errorf("reading response body: %w", err))
		res.HTTPStatus = httpResp.StatusCode
		return res
	}

	// Any status other than 200 is an API error, 201/204 included. The raw
	// body goes back to the caller verbatim.
	if httpResp.StatusCode != http.StatusOK {
		uerr := &UpstreamError{
			Provider:   call.Provider,
			StatusCode: httpResp.StatusCode,
			Body:       string(body),
		}
		return Result{
			ErrorMessage: uerr.Error(),
			HTTPStatus:   httpResp.StatusCode,
			Err:          uerr,
		}
	}

	text, err := call.adapter.ExtractText(body)
	if err != nil {
		return Result{
			ErrorMessage: msgParseError,
			HTTPStatus:   httpResp.StatusCode,
			Err: &UpstreamError{
				Provider:   call.Provider,
				StatusCode: httpResp.StatusCode,
				Body:       string(body),
				ParseErr:   err,
			},
		}
	}

	return Result{Success: true, Text: text, HTTPStatus: httpResp.StatusCode}
}

func transportFailure(k Kind, err error) Result {
	return Result{
		ErrorMessage: msgNetworkError,
		Err:          &TransportError{Provider: k, Err: err},
	}
}

// outcome maps a Result to its metrics label.
func outcome(res Result) string {
	if res.Success {
		return metrics.OutcomeSuccess
	}
	var uerr *UpstreamError
	if errors.As(res.Err, &uerr) {
		if uerr.ParseErr != nil {
			return metrics.OutcomeParse
		}
		return metrics.OutcomeUpstream
	}
	return metrics.OutcomeTransport
}
