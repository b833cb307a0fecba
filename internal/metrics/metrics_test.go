package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesDomainMetrics(t *testing.T) {
	PipelineOutcomes.WithLabelValues("success").Inc()
	BroadcastDeliveries.WithLabelValues("failure").Inc()
	ObserveHTTP(http.MethodGet, "GET /v1/health", http.StatusOK, time.Now())

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `healthbot_pipeline_outcomes_total{status="success"}`))
	assert.True(t, strings.Contains(body, `healthbot_broadcast_deliveries_total{outcome="failure"}`))
	assert.True(t, strings.Contains(body, `http_requests_total{method="GET",route="GET /v1/health",status="200"}`))
}
