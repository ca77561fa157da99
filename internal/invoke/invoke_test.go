package invoke

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-hub/internal/model"
)

func TestRegistryFor_RoutesByNameAndType(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name     string
		provider string
		typ      model.ServiceType
		want     Invoker
	}{
		{"claude goes to anthropic", "claude", model.TypeAIEngine, reg.anthropic},
		{"anthropic substring", "my-anthropic-proxy", model.TypeAIEngine, reg.anthropic},
		{"case insensitive", "Claude-3", model.TypeAIEngine, reg.anthropic},
		{"other ai engines use openai client", "gpt-4o", model.TypeAIEngine, reg.openai},
		{"self-hosted ai engine", "ollama-local", model.TypeAIEngine, reg.openai},
		{"scraper", "jina-reader", model.TypeScraper, reg.scraper},
		{"site analyzer", "lighthouse", model.TypeSiteAnalyzer, reg.scraper},
		{"keyword extractor", "keybert", model.TypeKeywordExtractor, reg.scraper},
		{"content analyzer", "readability", model.TypeContentAnalyzer, reg.scraper},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inv, err := reg.For(model.ResolvedConfig{ProviderName: tc.provider, Type: tc.typ})
			require.NoError(t, err)
			assert.Same(t, tc.want, inv)
		})
	}
}

func TestRegistryFor_UnknownType(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.For(model.ResolvedConfig{ProviderName: "x", Type: model.ServiceType("BOGUS")})
	assert.Error(t, err)
}
