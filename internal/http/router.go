// Package httpapi composes the domain handlers into one chi router with the
// shared middleware chain.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"profileclaim/internal/platform/metrics"
	"profileclaim/pkg/platform/httputil"
	"profileclaim/pkg/platform/middleware/admin"
	"profileclaim/pkg/platform/middleware/auth"
	"profileclaim/pkg/platform/middleware/metadata"
	"profileclaim/pkg/platform/middleware/request"
	"profileclaim/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Validator      auth.JWTValidator
	RequestTimeout time.Duration
	// User routes require a valid token; Admin routes also require the admin role.
	User   []Registrar
	Admin  []Registrar
	Health map[string]HealthCheck
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(request.Logger(d.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if d.Metrics != nil {
		r.Use(d.Metrics.LatencyMiddleware)
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
	r.Get("/healthz", healthHandler(d.Health))

	r.Group(func(r chi.Router) {
		if d.RequestTimeout > 0 {
			r.Use(chimw.Timeout(d.RequestTimeout))
		}
		r.Use(auth.RequireAuth(d.Validator, d.Logger))
		for _, h := range d.User {
			h.Register(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdmin(d.Logger))
			for _, h := range d.Admin {
				h.Register(r)
			}
		})
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body[name] = "unavailable"
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": body})
	}
}
