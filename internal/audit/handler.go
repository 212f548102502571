package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldline-hq/fieldline/internal/permissions"
	"github.com/fieldline-hq/fieldline/internal/platform/httpx"
	"github.com/fieldline-hq/fieldline/internal/shared"
)

// Handler exposes the compliance-review read paths.
type Handler struct {
	logger  *slog.Logger
	service *Logger
	mw      permissions.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Logger, mw permissions.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers audit review routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermViewAuditTrail))
		r.Get("/employees/{employeeID}/trail", h.trail)
		r.Get("/security-events", h.securityEvents)
	})
}

func (h *Handler) trail(w http.ResponseWriter, r *http.Request) {
	employeeID, err := strconv.ParseInt(chi.URLParam(r, "employeeID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid employee id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.Trail(r.Context(), employeeID, limit)
	if err != nil {
		h.logger.Error("audit trail", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"employeeId": employeeID, "entries": toTrailRows(entries)})
}

func (h *Handler) securityEvents(w http.ResponseWriter, r *http.Request) {
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))
	events, err := h.service.RecentSecurityEvents(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		h.logger.Error("security events", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

type trailRow struct {
	ID            string    `json:"id"`
	OccurredAt    time.Time `json:"occurredAt"`
	EventType     string    `json:"eventType"`
	PermissionKey string    `json:"permissionKey,omitempty"`
	Allowed       bool      `json:"allowed"`
	RoleUsed      string    `json:"roleUsed,omitempty"`
	IPAddress     string    `json:"ipAddress,omitempty"`
	UserAgent     string    `json:"userAgent,omitempty"`
}

func toTrailRows(entries []Entry) []trailRow {
	rows := make([]trailRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, trailRow{
			ID:            e.ID.String(),
			OccurredAt:    e.OccurredAt,
			EventType:     e.EventType,
			PermissionKey: e.PermissionKey,
			Allowed:       e.Allowed,
			RoleUsed:      e.RoleUsed,
			IPAddress:     e.IPAddress,
			UserAgent:     e.UserAgent,
		})
	}
	return rows
}
