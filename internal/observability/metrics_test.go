package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projtrack/projtrack/internal/guard"
	jobmetrics "github.com/projtrack/projtrack/internal/jobs"
	"github.com/projtrack/projtrack/internal/rbac"
)

var (
	_ rbac.Recorder  = (*Metrics)(nil)
	_ guard.Recorder = (*Metrics)(nil)
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobCollectors(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("session:sweep").End(nil)

	body := scrape(t, metrics)
	assert.Contains(t, body, `projtrack_jobs_total{job="session:sweep",status="success"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `projtrack_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `projtrack_http_request_duration_seconds_bucket{route="/test"`)
}

func TestDecisionCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordAuthzDecision("global", "view_users", false)
	metrics.RecordAuthzDecision("global", "view_users", false)
	metrics.RecordAuthzDecision("project", "view_project", true)
	metrics.RecordGuardDecision("redirect", "session_invalid")
	metrics.RecordGuardDecision("allow", "")

	body := scrape(t, metrics)
	assert.Contains(t, body, `projtrack_authz_decisions_total{check="global",key="view_users",result="denied"} 2`)
	assert.Contains(t, body, `projtrack_authz_decisions_total{check="project",key="view_project",result="allowed"} 1`)
	assert.Contains(t, body, `projtrack_guard_decisions_total{kind="redirect",reason="session_invalid"} 1`)
	assert.True(t, strings.Contains(body, `projtrack_guard_decisions_total{kind="allow",reason="none"} 1`))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordAuthzDecision("global", "x", true)
	m.RecordGuardDecision("allow", "")
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
