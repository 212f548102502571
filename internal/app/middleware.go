package app

import (
	"net/http"
	"strconv"

	"github.com/fieldline-hq/fieldline/internal/shared"
)

// EmployeeHeader carries the verified employee ID injected by the upstream
// identity layer. Session and identity verification happen before requests
// reach this service.
const EmployeeHeader = "X-Employee-ID"

// CallerMiddleware attaches the caller context when the upstream identity
// header is present. Requests without it pass through unauthenticated and
// are rejected by the permission middleware on protected routes.
func CallerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(EmployeeHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		employeeID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		caller := shared.CallerFromRequest(r, employeeID)
		next.ServeHTTP(w, r.WithContext(shared.ContextWithCaller(r.Context(), caller)))
	})
}
