package permissions

import (
	"net/http"

	"log/slog"

	"github.com/fieldline-hq/fieldline/internal/platform/httpx"
	"github.com/fieldline-hq/fieldline/internal/shared"
)

func deny(w http.ResponseWriter) {
	httpx.Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(shared.ErrNotAuthorized))
}

// Middleware wires permission enforcement for HTTP handlers. Identity is
// resolved upstream; the middleware only consumes the Caller already in the
// request context.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// RequireAny ensures the caller holds at least one of the required
// permissions. A request without a resolved caller is denied outright.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			caller, ok := shared.CallerFromContext(r.Context())
			if !ok {
				deny(w)
				return
			}
			for _, perm := range perms {
				if m.Resolver.CheckPermission(r.Context(), caller.EmployeeID, perm) {
					next.ServeHTTP(w, r)
					return
				}
			}
			deny(w)
		})
	}
}

// RequireAll ensures the caller holds every one of the required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			caller, ok := shared.CallerFromContext(r.Context())
			if !ok {
				deny(w)
				return
			}
			for _, perm := range perms {
				if !m.Resolver.CheckPermission(r.Context(), caller.EmployeeID, perm) {
					deny(w)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
