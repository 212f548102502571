package guard

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/fieldline-hq/fieldline/internal/shared"
)

func newPreflightRouter(counter *stubCounter, checker *stubChecker) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, newTestGuard(counter, checker))
	r := chi.NewRouter()
	r.Route("/guard", h.MountRoutes)
	return r
}

func TestPreflightReturnsDecision(t *testing.T) {
	router := newPreflightRouter(&stubCounter{count: 2}, &stubChecker{})

	req := httptest.NewRequest(http.MethodGet, "/guard/service_locations/7/deletion-preflight", nil)
	req = req.WithContext(shared.ContextWithCaller(req.Context(), shared.Caller{EmployeeID: 42}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var d Decision
	if err := json.Unmarshal(rr.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !d.Allowed || d.RemainingCount != 2 {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestPreflightRequiresCaller(t *testing.T) {
	router := newPreflightRouter(&stubCounter{count: 2}, &stubChecker{})

	req := httptest.NewRequest(http.MethodGet, "/guard/service_locations/7/deletion-preflight", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without caller, got %d", rr.Code)
	}
}

func TestPreflightRejectsBadScopeID(t *testing.T) {
	router := newPreflightRouter(&stubCounter{count: 2}, &stubChecker{})

	req := httptest.NewRequest(http.MethodGet, "/guard/service_locations/abc/deletion-preflight", nil)
	req = req.WithContext(shared.ContextWithCaller(req.Context(), shared.Caller{EmployeeID: 42}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad scope id, got %d", rr.Code)
	}
}
