package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/authz/check")

	req := httptest.NewRequest(http.MethodPost, "/api/authz/check", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `fieldline_http_requests_total{code="403",route="/api/authz/check"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `fieldline_http_request_duration_seconds_bucket{route="/api/authz/check"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestMetricsObserveDecision(t *testing.T) {
	metrics := NewMetrics()

	metrics.ObserveDecision(true, true)
	metrics.ObserveDecision(true, true)
	metrics.ObserveDecision(false, false)

	body := scrape(t, metrics)
	if !strings.Contains(body, `fieldline_authz_decisions_total{cache="hit",result="allow"} 2`) {
		t.Fatalf("expected allow/hit counter, got: %s", body)
	}
	if !strings.Contains(body, `fieldline_authz_decisions_total{cache="miss",result="deny"} 1`) {
		t.Fatalf("expected deny/miss counter, got: %s", body)
	}
}

func TestMetricsObserveAuditWrite(t *testing.T) {
	metrics := NewMetrics()

	metrics.ObserveAuditWrite("written")
	metrics.ObserveAuditWrite("dropped_full")

	body := scrape(t, metrics)
	if !strings.Contains(body, `fieldline_audit_writes_total{outcome="written"} 1`) {
		t.Fatalf("expected written counter, got: %s", body)
	}
	if !strings.Contains(body, `fieldline_audit_writes_total{outcome="dropped_full"} 1`) {
		t.Fatalf("expected dropped_full counter, got: %s", body)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var metrics *Metrics

	metrics.ObserveDecision(true, false)
	metrics.ObserveAuditWrite("written")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics handler, got %d", rr.Code)
	}

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("nil metrics middleware must pass through, got %d", rr.Code)
	}
}
