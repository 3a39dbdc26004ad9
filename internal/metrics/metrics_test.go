package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveUpstream(t *testing.T) {
	m := New()

	m.ObserveUpstream("Gemini", OutcomeSuccess, 120*time.Millisecond)
	m.ObserveUpstream("Gemini", OutcomeSuccess, 80*time.Millisecond)
	m.ObserveUpstream("Groq", OutcomeUpstream, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("Gemini", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("Groq", OutcomeUpstream)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.UpstreamDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveUpstream("Gemini", OutcomeSuccess, time.Second)
		m.ObserveStore("get_chat", OutcomeNotFound)
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveStore("save_chat", OutcomeSuccess)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chatproxy_store_operations_total{op="save_chat",outcome="success"} 1`)
}
