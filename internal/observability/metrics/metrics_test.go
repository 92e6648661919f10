package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestObserveTransition(t *testing.T) {
	m := New()
	m.ObserveTransition("approve", "ok", 10*time.Millisecond)
	m.ObserveTransition("approve", "ok", 10*time.Millisecond)
	m.ObserveTransition("approve", "CONCURRENT_MODIFICATION", time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `docflow_workflow_transitions_total{operation="approve",outcome="ok"} 2`)
	assert.Contains(t, body, `docflow_workflow_transitions_total{operation="approve",outcome="CONCURRENT_MODIFICATION"} 1`)
	assert.Contains(t, body, `docflow_workflow_transition_duration_seconds_count{operation="approve"} 3`)
}

func TestSetOverdue(t *testing.T) {
	m := New()
	m.SetOverdue(3, 7)

	body := scrape(t, m)
	assert.Contains(t, body, "docflow_workflow_overdue_documents 3")
	assert.Contains(t, body, "docflow_workflow_overdue_assignments 7")
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/v1/documents/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+id, nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	body := scrape(t, m)
	assert.Contains(t, body, `docflow_http_requests_total{method="GET",path="/api/v1/documents/:id",status="204"} 2`)
	assert.Contains(t, body, `docflow_http_requests_total{method="GET",path="unmatched",status="404"} 1`)
}
