package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/outreach/internal/domain"
)

func newTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

func TestRunRecorder(t *testing.T) {
	m := newTestMetrics()

	m.ItemProcessed(domain.StageSending, true)
	m.ItemProcessed(domain.StageSending, true)
	m.ItemProcessed(domain.StageSending, false)
	m.StageFinished(domain.StageSending, domain.RunStateComplete, 12)
	m.Conflict()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.itemsTotal.WithLabelValues("sending", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.itemsTotal.WithLabelValues("sending", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stagesTotal.WithLabelValues("sending", "COMPLETE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflictsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
}

func TestMiddleware_UsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestMetrics()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/v1/campaign-runs/:campaignId", func(c *gin.Context) {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.httpInFlight))
		c.Status(http.StatusOK)
	})

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/campaign-runs/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/campaign-runs/:campaignId", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpInFlight))
}

func TestHandler_Exposition(t *testing.T) {
	m := newTestMetrics()
	m.Conflict()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "outreach_run_conflicts_total 1"))
}
