package guard

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fieldline-hq/fieldline/internal/platform/httpx"
	"github.com/fieldline-hq/fieldline/internal/shared"
)

// Handler exposes the deletion preflight used by destructive flows before
// they soft-delete a record.
type Handler struct {
	logger *slog.Logger
	guard  *Guard
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, guard *Guard) *Handler {
	return &Handler{logger: logger, guard: guard}
}

// MountRoutes registers the preflight route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{resourceType}/{scopeID}/deletion-preflight", h.preflight)
}

func (h *Handler) preflight(w http.ResponseWriter, r *http.Request) {
	caller, ok := shared.CallerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	resourceType := chi.URLParam(r, "resourceType")
	scopeID, err := strconv.ParseInt(chi.URLParam(r, "scopeID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid scope id")
		return
	}
	decision := h.guard.CheckLastRecordProtection(r.Context(), resourceType, scopeID, caller.EmployeeID)
	httpx.JSON(w, http.StatusOK, decision)
}
