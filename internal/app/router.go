package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/fieldline-hq/fieldline/internal/audit"
	"github.com/fieldline-hq/fieldline/internal/guard"
	"github.com/fieldline-hq/fieldline/internal/observability"
	"github.com/fieldline-hq/fieldline/internal/permissions"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Metrics            *observability.Metrics
	PermissionsHandler *permissions.Handler
	AuditHandler       *audit.Handler
	GuardHandler       *guard.Handler
}

// NewRouter assembles the HTTP router.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(p.Config.AppRequestTimeout))
	r.Use(httprate.LimitByIP(300, time.Minute))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		IsDevelopment:      !p.Config.IsProduction(),
	})
	r.Use(secureMiddleware.Handler)

	if p.Metrics != nil {
		r.Use(p.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(CallerMiddleware)
		if p.PermissionsHandler != nil {
			r.Route("/authz", p.PermissionsHandler.MountRoutes)
		}
		if p.AuditHandler != nil {
			r.Route("/audit", p.AuditHandler.MountRoutes)
		}
		if p.GuardHandler != nil {
			r.Route("/guard", p.GuardHandler.MountRoutes)
		}
	})

	return r
}
