package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/lookalike/internal/web/handlers"
	"github.com/kozaktomas/lookalike/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	starsHandler := handlers.NewStarsHandler(s.state, s.embedder, s.logger)

	// Health and readiness (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Get("/api/v1/ready", s.state.ReadyHandler)

	s.router.Route("/api/v1/stars", func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(s.config.SecretAPIKey))
		r.Use(middleware.RateLimit(s.config.Web.RateLimitRPS, s.config.Web.RateLimitBurst))

		r.Post("/", starsHandler.Upload)
		r.Post("/vector", starsHandler.Vector)
		r.Get("/search", starsHandler.Search)
	})

	// Photos referenced by full_photo_filename
	s.router.Handle("/static/*", http.StripPrefix("/static/", photoServer(s.config.PhotosDir())))
}

// photoServer serves files from dir without directory listings.
func photoServer(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		fs.ServeHTTP(w, r)
	})
}
