package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServiceType(t *testing.T) {
	for _, st := range ServiceTypes {
		parsed, err := ParseServiceType(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}

	_, err := ParseServiceType("ai_engine")
	assert.Error(t, err)
	_, err = ParseServiceType("")
	assert.Error(t, err)
}

func TestOperationValid(t *testing.T) {
	for _, op := range Operations {
		assert.True(t, op.Valid(), op)
	}
	assert.False(t, Operation("SCORING").Valid())
	assert.False(t, Operation("").Valid())
}

func TestDefaultCapabilitiesCoverEveryType(t *testing.T) {
	for _, st := range ServiceTypes {
		caps := DefaultCapabilities(st)
		assert.NotEmpty(t, caps, st)
		for _, op := range caps {
			assert.True(t, op.Valid(), "%s default capability %s", st, op)
		}
	}
	assert.Nil(t, DefaultCapabilities(ServiceType("BOGUS")))
}

func TestSupports(t *testing.T) {
	p := ServiceProvider{Capabilities: []Operation{OpLeadScoring, OpAIDiscovery}}
	assert.True(t, p.Supports(OpLeadScoring))
	assert.False(t, p.Supports(OpWebScraping))
}

func TestValidateFor(t *testing.T) {
	tests := []struct {
		name    string
		typ     ServiceType
		cfg     ProviderConfig
		wantErr bool
	}{
		{
			name:    "missing api key",
			typ:     TypeAIEngine,
			cfg:     ProviderConfig{},
			wantErr: true,
		},
		{
			name: "ai engine minimal",
			typ:  TypeAIEngine,
			cfg:  ProviderConfig{APIKey: "sk-x"},
		},
		{
			name:    "scraper section on ai engine",
			typ:     TypeAIEngine,
			cfg:     ProviderConfig{APIKey: "sk-x", Scraper: &ScraperConfig{}},
			wantErr: true,
		},
		{
			name: "scraper minimal",
			typ:  TypeScraper,
			cfg:  ProviderConfig{APIKey: "sk-x"},
		},
		{
			name:    "ai section on scraper",
			typ:     TypeScraper,
			cfg:     ProviderConfig{APIKey: "sk-x", AI: &AIEngineConfig{}},
			wantErr: true,
		},
		{
			name: "analyzer minimal",
			typ:  TypeSiteAnalyzer,
			cfg:  ProviderConfig{APIKey: "sk-x"},
		},
		{
			name:    "scraper section on analyzer",
			typ:     TypeContentAnalyzer,
			cfg:     ProviderConfig{APIKey: "sk-x", Scraper: &ScraperConfig{}},
			wantErr: true,
		},
		{
			name:    "unknown type",
			typ:     ServiceType("BOGUS"),
			cfg:     ProviderConfig{APIKey: "sk-x"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.ValidateFor(tc.typ)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateForFillsAIDefaults(t *testing.T) {
	cfg := ProviderConfig{APIKey: "sk-x"}
	require.NoError(t, cfg.ValidateFor(TypeAIEngine))

	require.NotNil(t, cfg.AI)
	assert.Equal(t, DefaultMaxTokens, cfg.AI.MaxTokens)
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, DefaultTemperature, *cfg.AI.Temperature, 0.001)
}

func TestValidateForKeepsExplicitAISettings(t *testing.T) {
	temp := 0.2
	cfg := ProviderConfig{
		APIKey: "sk-x",
		AI:     &AIEngineConfig{Model: "gpt-4o", MaxTokens: 1024, Temperature: &temp},
	}
	require.NoError(t, cfg.ValidateFor(TypeAIEngine))

	assert.Equal(t, 1024, cfg.AI.MaxTokens)
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.2, *cfg.AI.Temperature, 0.001)
}

func TestValidateForKeepsExplicitZeroTemperature(t *testing.T) {
	zero := 0.0
	cfg := ProviderConfig{
		APIKey: "sk-x",
		AI:     &AIEngineConfig{Model: "gpt-4o", Temperature: &zero},
	}
	require.NoError(t, cfg.ValidateFor(TypeAIEngine))

	require.NotNil(t, cfg.AI.Temperature)
	assert.Zero(t, *cfg.AI.Temperature)
	assert.Zero(t, cfg.AI.TemperatureOrDefault())
}

func TestTemperatureOrDefault(t *testing.T) {
	var unset *AIEngineConfig
	assert.InDelta(t, DefaultTemperature, unset.TemperatureOrDefault(), 0.001)
	assert.InDelta(t, DefaultTemperature, (&AIEngineConfig{}).TemperatureOrDefault(), 0.001)

	temp := 0.2
	assert.InDelta(t, 0.2, (&AIEngineConfig{Temperature: &temp}).TemperatureOrDefault(), 0.001)
}

func TestValidateForFillsEmptySections(t *testing.T) {
	scraper := ProviderConfig{APIKey: "sk-x"}
	require.NoError(t, scraper.ValidateFor(TypeScraper))
	assert.NotNil(t, scraper.Scraper)

	analyzer := ProviderConfig{APIKey: "sk-x"}
	require.NoError(t, analyzer.ValidateFor(TypeKeywordExtractor))
	assert.NotNil(t, analyzer.Analyzer)
}
