package shared

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// Caller carries request-scoped context about the authenticated employee.
// Identity verification happens upstream; by the time a Caller reaches this
// subsystem the employee ID is trusted.
type Caller struct {
	EmployeeID int64
	IPAddress  string
	UserAgent  string
}

type callerContextKey struct{}

// ContextWithCaller stores the caller in context.
func ContextWithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext extracts the caller from context. The boolean reports
// whether a caller was attached at all.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(Caller)
	return caller, ok
}

// CallerFromRequest builds a Caller from the request, for middleware that
// already resolved the employee ID.
func CallerFromRequest(r *http.Request, employeeID int64) Caller {
	return Caller{
		EmployeeID: employeeID,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
