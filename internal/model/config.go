package model

import "github.com/rotisserie/eris"

// Defaults applied when a config omits optional AI engine settings.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.7
)

// AIEngineConfig holds settings specific to AI_ENGINE providers. Temperature
// is a pointer so an explicit 0 is distinguishable from unset; nil means
// DefaultTemperature.
type AIEngineConfig struct {
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// TemperatureOrDefault resolves the effective sampling temperature.
func (c *AIEngineConfig) TemperatureOrDefault() float64 {
	if c == nil || c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// ScraperConfig holds settings specific to SCRAPER providers.
type ScraperConfig struct {
	RenderJS bool `json:"render_js,omitempty"`
	MaxPages int  `json:"max_pages,omitempty"`
}

// AnalyzerConfig holds settings shared by the analyzer provider types.
type AnalyzerConfig struct {
	Depth int `json:"depth,omitempty"`
}

// ProviderConfig is the per-provider configuration blob. APIKey and BaseURL
// are common to every type; exactly one of the variant sections matches the
// provider's ServiceType. The stored APIKey may be at rest in encrypted form
// (an "encrypted:" prefixed envelope). Admin reads return the envelope as-is;
// only the resolver decrypts, yielding plaintext or the masked sentinel, so
// raw secrets never escape outside an invocation path.
type ProviderConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`

	AI       *AIEngineConfig `json:"ai,omitempty"`
	Scraper  *ScraperConfig  `json:"scraper,omitempty"`
	Analyzer *AnalyzerConfig `json:"analyzer,omitempty"`
}

// Clone returns a deep copy. Mutating the copy, including its variant
// section, never touches the original.
func (c ProviderConfig) Clone() ProviderConfig {
	out := c
	if c.AI != nil {
		ai := *c.AI
		if c.AI.Temperature != nil {
			temp := *c.AI.Temperature
			ai.Temperature = &temp
		}
		out.AI = &ai
	}
	if c.Scraper != nil {
		sc := *c.Scraper
		out.Scraper = &sc
	}
	if c.Analyzer != nil {
		an := *c.Analyzer
		out.Analyzer = &an
	}
	return out
}

// ValidateFor checks that the config matches the provider type and fills in
// documented defaults for unset optional fields. It is called at the registry
// boundary so nothing downstream deals with half-formed configs.
func (c *ProviderConfig) ValidateFor(t ServiceType) error {
	if c.APIKey == "" {
		return eris.New("config: api key is required")
	}

	switch t {
	case TypeAIEngine:
		if c.Scraper != nil || c.Analyzer != nil {
			return eris.Errorf("config: non-AI section set on %s provider", t)
		}
		if c.AI == nil {
			c.AI = &AIEngineConfig{}
		}
		if c.AI.MaxTokens == 0 {
			c.AI.MaxTokens = DefaultMaxTokens
		}
		if c.AI.Temperature == nil {
			temp := DefaultTemperature
			c.AI.Temperature = &temp
		}
	case TypeScraper:
		if c.AI != nil || c.Analyzer != nil {
			return eris.Errorf("config: non-scraper section set on %s provider", t)
		}
		if c.Scraper == nil {
			c.Scraper = &ScraperConfig{}
		}
	case TypeSiteAnalyzer, TypeKeywordExtractor, TypeContentAnalyzer:
		if c.AI != nil || c.Scraper != nil {
			return eris.Errorf("config: non-analyzer section set on %s provider", t)
		}
		if c.Analyzer == nil {
			c.Analyzer = &AnalyzerConfig{}
		}
	default:
		return eris.Errorf("config: unknown service type %q", t)
	}

	return nil
}
