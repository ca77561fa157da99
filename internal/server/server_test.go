package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-hub/internal/dispatch"
	"github.com/sells-group/provider-hub/internal/invoke"
	"github.com/sells-group/provider-hub/internal/model"
	"github.com/sells-group/provider-hub/internal/monitoring"
	"github.com/sells-group/provider-hub/internal/registry"
	"github.com/sells-group/provider-hub/internal/resolver"
	"github.com/sells-group/provider-hub/internal/secrets"
	"github.com/sells-group/provider-hub/internal/store"
	"github.com/sells-group/provider-hub/internal/syncer"
)

type apiEnv struct {
	handler  http.Handler
	registry *registry.Registry
	mappings *registry.Mappings
	store    store.Store
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	cipher, err := secrets.NewCipher("test-passphrase")
	require.NoError(t, err)

	res := resolver.New(st, cipher)
	sync := syncer.New(st)
	reg := registry.New(st, cipher, res, sync)
	maps := registry.NewMappings(st)
	metrics := monitoring.NewMetrics()

	srv := New(0, Deps{
		Store:      st,
		Registry:   reg,
		Mappings:   maps,
		Syncer:     sync,
		Dispatcher: dispatch.New(st, res, metrics),
		Invokers:   invoke.NewRegistry(),
		Metrics:    metrics,
	})

	return &apiEnv{
		handler:  srv.Router(),
		registry: reg,
		mappings: maps,
		store:    st,
	}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func (e *apiEnv) seedProvider(t *testing.T, name string) *model.ServiceProvider {
	t.Helper()
	p, err := e.registry.Upsert(context.Background(), registry.UpsertInput{
		Name: name,
		Type: model.TypeAIEngine,
		Config: model.ProviderConfig{
			APIKey: "sk-" + name,
			AI:     &model.AIEngineConfig{Model: "claude-sonnet-4-5"},
		},
	})
	require.NoError(t, err)
	return p
}

func TestHealthEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])
}

func TestProviderLifecycleOverAPI(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/providers", registry.UpsertInput{
		Name: "claude",
		Type: model.TypeAIEngine,
		Config: model.ProviderConfig{
			APIKey: "sk-secret",
			AI:     &model.AIEngineConfig{Model: "claude-sonnet-4-5"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decodeBody[model.ServiceProvider](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, created.Priority)

	rec = env.do(t, http.MethodGet, "/api/providers/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "claude", decodeBody[model.ServiceProvider](t, rec).Name)

	rec = env.do(t, http.MethodPut, "/api/providers/"+created.ID+"/priority", map[string]int{"priority": 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decodeBody[model.ServiceProvider](t, rec).Priority)

	rec = env.do(t, http.MethodPut, "/api/providers/"+created.ID+"/active", map[string]bool{"is_active": false})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/providers?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]model.ServiceProvider](t, rec))

	rec = env.do(t, http.MethodDelete, "/api/providers/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/providers/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProvidersRejectsUnknownType(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/api/providers?type=BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpsertProviderValidation(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodPost, "/api/providers", registry.UpsertInput{
		Name: "no-key",
		Type: model.TypeAIEngine,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMappingEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	p := env.seedProvider(t, "claude")

	rec := env.do(t, http.MethodPost, "/api/mappings", map[string]any{
		"operation":   model.OpLeadScoring,
		"provider_id": p.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[model.OperationMapping](t, rec)
	assert.Equal(t, p.Priority, created.Priority)
	assert.True(t, created.IsEnabled)

	// Duplicate (operation, provider) pairs conflict.
	rec = env.do(t, http.MethodPost, "/api/mappings", map[string]any{
		"operation":   model.OpLeadScoring,
		"provider_id": p.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/mappings?operation=LEAD_SCORING", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	candidates := decodeBody[[]model.MappingCandidate](t, rec)
	require.Len(t, candidates, 1)
	assert.Equal(t, "claude", candidates[0].Provider.Name)

	rec = env.do(t, http.MethodGet, "/api/providers/"+p.ID+"/mappings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.OperationMapping](t, rec), 1)

	rec = env.do(t, http.MethodPut, "/api/mappings/"+created.ID+"/priority", map[string]int{"priority": 7})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/mappings/"+created.ID+"/enabled", map[string]bool{"is_enabled": false})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/mappings/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/mappings/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMappingsRequiresKnownOperation(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/api/mappings?operation=NOPE", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMappingUnknownProvider(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodPost, "/api/mappings", map[string]any{
		"operation":   model.OpLeadScoring,
		"provider_id": "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	p := env.seedProvider(t, "claude")
	ctx := context.Background()
	_, err := env.mappings.Create(ctx, model.OpLeadScoring, p.ID, nil, true)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[syncer.SyncReport](t, rec)
	assert.Equal(t, 1, report.TotalProviders)

	rec = env.do(t, http.MethodGet, "/api/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[syncer.StatusReport](t, rec)
	assert.InDelta(t, 100.0, status.OverallSyncPercentage, 0.01)
}

func TestDispatchEndpoint_NoProviders(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodPost, "/api/dispatch", map[string]any{
		"operation": model.OpLeadScoring,
		"prompt":    "score this lead",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDispatchEndpoint_UnknownOperation(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodPost, "/api/dispatch", map[string]any{
		"operation": "NOPE",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeBody[monitoring.MetricsSnapshot](t, rec)
	assert.False(t, snap.CollectedAt.IsZero())
}
