package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pdfchat/internal/handlers"
	"pdfchat/internal/service"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Documents      service.DocumentService
	HealthChecks   []handlers.HealthCheck
	MaxUploadBytes int64
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CORS)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(SessionMiddleware)
	r.Use(middleware.Recoverer)

	uploadHandler := handlers.NewUploadHandler(deps.Documents, deps.MaxUploadBytes)
	queryHandler := handlers.NewQueryHandler(deps.Documents)
	sessionHandler := handlers.NewSessionHandler(deps.Documents)
	healthHandler := handlers.NewHealthHandler(deps.HealthChecks...)

	r.Get("/", handlers.Status)
	r.Method(http.MethodPost, "/upload_pdf", uploadHandler)
	r.Method(http.MethodPost, "/query", queryHandler)
	r.Method(http.MethodGet, "/session", sessionHandler)
	r.Method(http.MethodDelete, "/session", sessionHandler)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
	})

	return r
}
