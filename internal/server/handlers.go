package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-hub/internal/dispatch"
	"github.com/sells-group/provider-hub/internal/invoke"
	"github.com/sells-group/provider-hub/internal/model"
	"github.com/sells-group/provider-hub/internal/registry"
	"github.com/sells-group/provider-hub/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// A probe read verifies the store is reachable.
	if _, err := s.store.ListProviders(r.Context(), store.ProviderFilter{ActiveOnly: true}); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"store":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	filter := store.ProviderFilter{}
	if t := r.URL.Query().Get("type"); t != "" {
		typ, err := model.ParseServiceType(t)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		filter.Type = typ
	}
	filter.ActiveOnly = r.URL.Query().Get("active") == "true"

	providers, err := s.registry.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, providers)
}

func (s *Server) handleUpsertProvider(w http.ResponseWriter, r *http.Request) {
	var in registry.UpsertInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, eris.Wrap(err, "server: decode provider"))
		return
	}

	p, err := s.registry.Upsert(r.Context(), in)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetProviderPriority(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Priority int `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, eris.Wrap(err, "server: decode priority"))
		return
	}

	p, err := s.registry.SetPriority(r.Context(), chi.URLParam(r, "id"), body.Priority)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleSetProviderActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsActive bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, eris.Wrap(err, "server: decode active flag"))
		return
	}

	if err := s.registry.SetActive(r.Context(), chi.URLParam(r, "id"), body.IsActive); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListProviderMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.mappings.ListForProvider(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, mappings)
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	op := model.Operation(r.URL.Query().Get("operation"))
	if !op.Valid() {
		respondError(w, http.StatusBadRequest, eris.Errorf("server: unknown operation %q", op))
		return
	}

	candidates, err := s.mappings.ListForOperation(r.Context(), op)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, candidates)
}

func (s *Server) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Operation  model.Operation `json:"operation"`
		ProviderID string          `json:"provider_id"`
		Priority   *int            `json:"priority,omitempty"`
		IsEnabled  *bool           `json:"is_enabled,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, eris.Wrap(err, "server: decode mapping"))
		return
	}
	if !body.Operation.Valid() {
		respondError(w, http.StatusBadRequest, eris.Errorf("server: unknown operation %q", body.Operation))
		return
	}

	enabled := true
	if body.IsEnabled != nil {
		enabled = *body.IsEnabled
	}

	m, err := s.mappings.Create(r.Context(), body.Operation, body.ProviderID, body.Priority, enabled)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	if err := s.mappings.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetMappingPriority(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Priority int `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, eris.Wrap(err, "server: decode priority"))
		return
	}

	if err := s.mappings.SetPriority(r.Context(), chi.URLParam(r, "id"), body.Priority); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetMappingEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsEnabled bool `json:"is_enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, eris.Wrap(err, "server: decode enabled flag"))
		return
	}

	if err := s.mappings.SetEnabled(r.Context(), chi.URLParam(r, "id"), body.IsEnabled); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	report, err := s.syncer.SyncAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.syncer.Status(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Operation model.Operation `json:"operation"`
		Prompt    string          `json:"prompt,omitempty"`
		System    string          `json:"system,omitempty"`
		URL       string          `json:"url,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, eris.Wrap(err, "server: decode dispatch request"))
		return
	}
	if !body.Operation.Valid() {
		respondError(w, http.StatusBadRequest, eris.Errorf("server: unknown operation %q", body.Operation))
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), body.Operation, s.invokers.Bind(invoke.Request{
		Prompt: body.Prompt,
		System: body.System,
		URL:    body.URL,
	}))
	if err != nil {
		var noProviders *dispatch.NoProvidersError
		var exhausted *dispatch.ExhaustedError
		switch {
		case errors.As(err, &noProviders):
			respondError(w, http.StatusServiceUnavailable, err)
		case errors.As(err, &exhausted):
			respondError(w, http.StatusBadGateway, err)
		default:
			respondError(w, http.StatusInternalServerError, err)
		}
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
