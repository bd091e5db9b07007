// Package http assembles the router and server for the service.
package http

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authctrl "github.com/dropDatabas3/fedgate/internal/http/controllers/auth"
	"github.com/dropDatabas3/fedgate/internal/oauth/microsoft"
)

// NewRouter builds the full route tree.
func NewRouter(auth *authctrl.Controller) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(withSecurityHeaders)
	r.Use(withLogging)
	r.Use(withMetrics)

	r.Get("/healthz", func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
		w.WriteHeader(stdhttp.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(stdhttp.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/auth/login", auth.Login)
	// The provider posts the callback (response_mode=form_post); GET is
	// kept for providers and tests that use query redirects.
	r.Get(microsoft.CallbackPath, auth.Callback)
	r.Post(microsoft.CallbackPath, auth.Callback)
	r.Get("/auth/me", auth.Me)
	r.Post("/auth/logout", auth.Logout)

	return r
}
