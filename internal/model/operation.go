package model

import "time"

// Operation names an abstract unit of work one or more providers can fulfill.
type Operation string

const (
	OpAIDiscovery       Operation = "AI_DISCOVERY"
	OpMarketDiscovery   Operation = "MARKET_DISCOVERY"
	OpLeadScoring       Operation = "LEAD_SCORING"
	OpWebScraping       Operation = "WEB_SCRAPING"
	OpSiteAnalysis      Operation = "SITE_ANALYSIS"
	OpKeywordExtraction Operation = "KEYWORD_EXTRACTION"
	OpContentAnalysis   Operation = "CONTENT_ANALYSIS"
)

// Operations lists every known operation.
var Operations = []Operation{
	OpAIDiscovery,
	OpMarketDiscovery,
	OpLeadScoring,
	OpWebScraping,
	OpSiteAnalysis,
	OpKeywordExtraction,
	OpContentAnalysis,
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	for _, known := range Operations {
		if op == known {
			return true
		}
	}
	return false
}

// DefaultCapabilities returns the operations a provider of the given type is
// assumed to support when none are configured explicitly.
func DefaultCapabilities(t ServiceType) []Operation {
	switch t {
	case TypeAIEngine:
		return []Operation{OpAIDiscovery, OpMarketDiscovery, OpLeadScoring, OpKeywordExtraction, OpContentAnalysis}
	case TypeScraper:
		return []Operation{OpWebScraping, OpSiteAnalysis}
	case TypeSiteAnalyzer:
		return []Operation{OpSiteAnalysis, OpContentAnalysis}
	case TypeKeywordExtractor:
		return []Operation{OpKeywordExtraction}
	case TypeContentAnalyzer:
		return []Operation{OpContentAnalysis}
	default:
		return nil
	}
}

// OperationMapping associates one provider with one operation. The mapping
// carries its own enable flag and priority, independent of the provider's
// global priority. At most one mapping exists per (operation, provider) pair.
type OperationMapping struct {
	ID         string    `json:"id"`
	Operation  Operation `json:"operation"`
	ProviderID string    `json:"provider_id"`
	IsEnabled  bool      `json:"is_enabled"`
	Priority   int       `json:"priority"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MappingCandidate is a mapping joined with its provider, as produced when
// listing the candidates for an operation.
type MappingCandidate struct {
	Mapping  OperationMapping `json:"mapping"`
	Provider ServiceProvider  `json:"provider"`
}
