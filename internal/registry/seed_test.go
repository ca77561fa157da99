package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-hub/internal/model"
	"github.com/sells-group/provider-hub/internal/store"
)

const seedYAML = `providers:
  - name: claude
    type: AI_ENGINE
    api_key: sk-claude
    model: claude-sonnet-4-5
    priority: 1
    operations:
      - AI_DISCOVERY
      - LEAD_SCORING
  - name: jina-reader
    type: SCRAPER
    api_key: sk-jina
    base_url: https://r.jina.ai
    priority: 2
    operations:
      - WEB_SCRAPING
    limits:
      monthly_quota: 5000
      concurrent_requests: 10
      cost_per_request: 0.01
`

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSeedFile(t *testing.T) {
	seed, err := LoadSeedFile(writeSeedFile(t, seedYAML))
	require.NoError(t, err)

	require.Len(t, seed.Providers, 2)
	assert.Equal(t, "claude", seed.Providers[0].Name)
	assert.Equal(t, []string{"AI_DISCOVERY", "LEAD_SCORING"}, seed.Providers[0].Operations)
	require.NotNil(t, seed.Providers[1].Limits)
	assert.Equal(t, 5000, seed.Providers[1].Limits.MonthlyQuota)
}

func TestLoadSeedFile_Missing(t *testing.T) {
	_, err := LoadSeedFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeed_CreatesProvidersAndMappings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seed, err := LoadSeedFile(writeSeedFile(t, seedYAML))
	require.NoError(t, err)
	require.NoError(t, Seed(ctx, env.registry, env.mappings, seed))

	claude, err := env.store.FindProvider(ctx, "claude", model.TypeAIEngine)
	require.NoError(t, err)
	assert.Equal(t, 1, claude.Priority)

	jina, err := env.store.FindProvider(ctx, "jina-reader", model.TypeScraper)
	require.NoError(t, err)
	assert.Equal(t, 2, jina.Priority)
	assert.Equal(t, 5000, jina.Limits.MonthlyQuota)

	scraping, err := env.store.ListMappingsForOperation(ctx, model.OpWebScraping)
	require.NoError(t, err)
	require.Len(t, scraping, 1)
	assert.Equal(t, jina.ID, scraping[0].Mapping.ProviderID)
}

func TestSeed_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seed, err := LoadSeedFile(writeSeedFile(t, seedYAML))
	require.NoError(t, err)
	require.NoError(t, Seed(ctx, env.registry, env.mappings, seed))
	require.NoError(t, Seed(ctx, env.registry, env.mappings, seed))

	providers, err := env.store.ListProviders(ctx, store.ProviderFilter{})
	require.NoError(t, err)
	assert.Len(t, providers, 2)

	scoring, err := env.store.ListMappingsForOperation(ctx, model.OpLeadScoring)
	require.NoError(t, err)
	assert.Len(t, scoring, 1)
}

func TestSeed_RejectsUnknownOperation(t *testing.T) {
	env := newTestEnv(t)

	seed := &SeedFile{Providers: []SeedProvider{{
		Name:       "claude",
		Type:       "AI_ENGINE",
		APIKey:     "sk-x",
		Operations: []string{"NOPE"},
	}}}
	assert.Error(t, Seed(context.Background(), env.registry, env.mappings, seed))
}
