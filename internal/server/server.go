// Package server exposes the admin HTTP API: provider and mapping CRUD,
// priority synchronization, metrics, and an operation dispatch endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-hub/internal/dispatch"
	"github.com/sells-group/provider-hub/internal/invoke"
	"github.com/sells-group/provider-hub/internal/monitoring"
	"github.com/sells-group/provider-hub/internal/registry"
	"github.com/sells-group/provider-hub/internal/store"
	"github.com/sells-group/provider-hub/internal/syncer"
)

// Server hosts the admin API.
type Server struct {
	store      store.Store
	registry   *registry.Registry
	mappings   *registry.Mappings
	syncer     *syncer.Syncer
	dispatcher *dispatch.Dispatcher
	invokers   *invoke.Registry
	metrics    *monitoring.Metrics

	srv *http.Server
}

// Deps bundles the components the server fronts.
type Deps struct {
	Store      store.Store
	Registry   *registry.Registry
	Mappings   *registry.Mappings
	Syncer     *syncer.Syncer
	Dispatcher *dispatch.Dispatcher
	Invokers   *invoke.Registry
	Metrics    *monitoring.Metrics
}

// New creates a Server listening on the given port.
func New(port int, deps Deps) *Server {
	s := &Server{
		store:      deps.Store,
		registry:   deps.Registry,
		mappings:   deps.Mappings,
		syncer:     deps.Syncer,
		dispatcher: deps.Dispatcher,
		invokers:   deps.Invokers,
		metrics:    deps.Metrics,
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Route("/providers", func(r chi.Router) {
			r.Get("/", s.handleListProviders)
			r.Post("/", s.handleUpsertProvider)
			r.Get("/{id}", s.handleGetProvider)
			r.Delete("/{id}", s.handleDeleteProvider)
			r.Put("/{id}/priority", s.handleSetProviderPriority)
			r.Put("/{id}/active", s.handleSetProviderActive)
			r.Get("/{id}/mappings", s.handleListProviderMappings)
		})

		r.Route("/mappings", func(r chi.Router) {
			r.Get("/", s.handleListMappings)
			r.Post("/", s.handleCreateMapping)
			r.Delete("/{id}", s.handleDeleteMapping)
			r.Put("/{id}/priority", s.handleSetMappingPriority)
			r.Put("/{id}/enabled", s.handleSetMappingEnabled)
		})

		r.Post("/sync", s.handleSyncAll)
		r.Get("/sync/status", s.handleSyncStatus)

		r.Post("/dispatch", s.handleDispatch)
	})

	return r
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
