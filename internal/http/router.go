package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aurora-qa/internal/handlers"
	"aurora-qa/internal/service"
	"aurora-qa/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	QAService   service.QAService
	VectorStore vectorstore.VectorStore
	Messages    handlers.MessageCounter
	Names       handlers.NameCache
	Collection  string

	// MetricsHandler serves /metrics; promhttp.Handler() when nil.
	MetricsHandler http.Handler
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	askHandler := handlers.NewAskHandler(deps.QAService)
	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.Messages, deps.Names, deps.Collection)

	r.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/ask", askHandler)
		r.Method(http.MethodGet, "/health", healthHandler)
	})

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	return r
}
