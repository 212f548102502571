package permissions

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fieldline-hq/fieldline/internal/platform/httpx"
	"github.com/fieldline-hq/fieldline/internal/shared"
)

// Handler exposes the administrative permission surface: catalog listing,
// grant/revoke, role assignment and per-employee read models.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
	validate *validator.Validate
	mw       Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver) *Handler {
	return &Handler{
		logger:   logger,
		resolver: resolver,
		validate: validator.New(),
		mw:       Middleware{Resolver: resolver, Logger: logger},
	}
}

// MountRoutes registers the administrative routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermManageGrants))
		r.Get("/permissions", h.listCatalog)
		r.Get("/roles/{roleID}/grants", h.roleGrants)
		r.Post("/roles/{roleID}/grants", h.applyGrant)
		r.Post("/roles/{roleID}/grants/bulk", h.applyBulkGrant)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermAssignRoles))
		r.Post("/employees/{employeeID}/roles/{roleID}", h.assignRole)
		r.Delete("/employees/{employeeID}/roles/{roleID}", h.removeRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermViewEmployees, shared.PermManageGrants))
		r.Get("/employees/{employeeID}/permissions", h.employeePermissions)
		r.Get("/employees/{employeeID}/roles", h.employeeRoles)
	})
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	perms, err := h.resolver.ListCatalog(r.Context())
	if err != nil {
		h.respondError(w, "list catalog", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) roleGrants(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	grants, err := h.resolver.RoleGrants(r.Context(), roleID)
	if err != nil {
		h.respondError(w, "role grants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roleId": roleID, "grants": grants})
}

type grantRequest struct {
	PermissionKey string `json:"permissionKey" validate:"required"`
	Granted       *bool  `json:"granted" validate:"required"`
}

func (h *Handler) applyGrant(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if *req.Granted {
		err = h.resolver.Grant(r.Context(), roleID, req.PermissionKey)
	} else {
		err = h.resolver.Revoke(r.Context(), roleID, req.PermissionKey)
	}
	if err != nil {
		h.respondError(w, "apply grant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roleId": roleID, "permissionKey": req.PermissionKey, "granted": *req.Granted})
}

type bulkGrantRequest struct {
	PermissionKeys []string `json:"permissionKeys" validate:"required,min=1,dive,required"`
}

func (h *Handler) applyBulkGrant(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req bulkGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.resolver.BulkGrant(r.Context(), roleID, req.PermissionKeys); err != nil {
		h.respondError(w, "bulk grant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roleId": roleID, "granted": len(req.PermissionKeys)})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	employeeID, err := pathID(r, "employeeID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid employee id")
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	if err := h.resolver.AssignRole(r.Context(), employeeID, roleID); err != nil {
		h.respondError(w, "assign role", err)
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	employeeID, err := pathID(r, "employeeID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid employee id")
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	if err := h.resolver.RemoveRole(r.Context(), employeeID, roleID); err != nil {
		h.respondError(w, "remove role", err)
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) employeePermissions(w http.ResponseWriter, r *http.Request) {
	employeeID, err := pathID(r, "employeeID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid employee id")
		return
	}
	perms, err := h.resolver.GetUserPermissions(r.Context(), employeeID)
	if err != nil {
		h.respondError(w, "employee permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"employeeId": employeeID, "permissions": perms})
}

func (h *Handler) employeeRoles(w http.ResponseWriter, r *http.Request) {
	employeeID, err := pathID(r, "employeeID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid employee id")
		return
	}
	includeInherited := r.URL.Query().Get("inherited") == "true"
	roles, err := h.resolver.GetUserRoles(r.Context(), employeeID, includeInherited)
	if err != nil {
		h.respondError(w, "employee roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"employeeId": employeeID, "roles": roles})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrUnknownPermission), errors.Is(err, ErrInvalidKey):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
