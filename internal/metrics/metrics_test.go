package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smartnotes-ai/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTransitionCountsByOutcome(t *testing.T) {
	m, err := NewLedgerMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordTransition("enhancements.begin_processing", "succeeded")
	m.RecordTransition("enhancements.begin_processing", "rejected")
	m.RecordTransition("enhancements.begin_processing", "rejected")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.transitionsTotal.WithLabelValues("enhancements.begin_processing", "succeeded")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.transitionsTotal.WithLabelValues("enhancements.begin_processing", "rejected")))
}

func TestRecordVersionRetry(t *testing.T) {
	m, err := NewLedgerMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordVersionRetry()
	m.RecordVersionRetry()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.versionRetries))
}

func TestObserveProcessingTime(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewLedgerMetrics(registry)
	require.NoError(t, err)

	m.ObserveProcessingTime(models.EnhancementTypeOCR, 420)
	m.ObserveProcessingTime(models.EnhancementTypeOCR, 1300)

	assert.Equal(t, 1, testutil.CollectAndCount(m.processingTimeMS, "smartnotes_enhancement_processing_time_milliseconds"))
	families, err := registry.Gather()
	require.NoError(t, err)
	var sampleCount uint64
	for _, family := range families {
		if family.GetName() != "smartnotes_enhancement_processing_time_milliseconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			sampleCount += metric.GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(2), sampleCount)
}

func TestRegisteringTwiceFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewLedgerMetrics(registry)
	require.NoError(t, err)

	_, err = NewLedgerMetrics(registry)
	assert.Error(t, err)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := NewLedgerMetrics(nil)
	require.NoError(t, err)
	m.RecordHTTPRequest(http.MethodGet, "/healthz", "2xx")

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	assert.True(t, strings.Contains(body, `smartnotes_http_requests_total{method="GET",route="/healthz",status="2xx"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
