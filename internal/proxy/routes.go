package proxy

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/SGK112/ai-website-builder-sub004/internal/auth"
)

// Routes mounts the public surface. metrics may be nil.
func Routes(h *Handler, authMiddleware auth.Middleware, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"generation-router"}`))
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	r.Get("/v1/providers", h.HandleProviders)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/v1/generate", h.HandleGenerate)
		r.Get("/v1/credits", h.HandleCredits)
		r.Get("/v1/usage", h.HandleUsage)
	})
	return r
}
