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

func TestRecordGeneration(t *testing.T) {
	m := New()

	m.RecordGeneration(OutcomeSuccess, 2*time.Second)
	m.RecordGeneration(OutcomeSuccess, time.Second)
	m.RecordGeneration(OutcomeTimeout, 30*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GenerationsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationsTotal.WithLabelValues(OutcomeTimeout)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.GenerationDuration))
}

func TestGaugesAndCounters(t *testing.T) {
	m := New()

	m.SetFollowUpCandidates(3)
	m.RecordConfigFallback()
	m.AddWebsocketClients(2)
	m.AddWebsocketClients(-1)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.FollowUpCandidates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfigFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebsocketClients))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHTTP("GET", "/health", "200", time.Millisecond)
		m.RecordGeneration(OutcomeFailure, 0)
		m.RecordConfigFallback()
		m.SetFollowUpCandidates(1)
		m.AddWebsocketClients(1)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordHTTP("GET", "/clients", "200", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dealercrm_http_requests_total{method="GET",route="/clients",status="200"} 1`)
}
