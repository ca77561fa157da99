package model

import (
	"fmt"
	"time"
)

// ServiceType identifies the kind of external capability a provider supplies.
type ServiceType string

const (
	TypeAIEngine         ServiceType = "AI_ENGINE"
	TypeScraper          ServiceType = "SCRAPER"
	TypeSiteAnalyzer     ServiceType = "SITE_ANALYZER"
	TypeKeywordExtractor ServiceType = "KEYWORD_EXTRACTOR"
	TypeContentAnalyzer  ServiceType = "CONTENT_ANALYZER"
)

// ServiceTypes lists every known service type.
var ServiceTypes = []ServiceType{
	TypeAIEngine,
	TypeScraper,
	TypeSiteAnalyzer,
	TypeKeywordExtractor,
	TypeContentAnalyzer,
}

// Valid reports whether t is a known service type.
func (t ServiceType) Valid() bool {
	for _, known := range ServiceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseServiceType converts a string into a ServiceType, or errors for
// unknown values.
func ParseServiceType(s string) (ServiceType, error) {
	t := ServiceType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown service type %q", s)
	}
	return t, nil
}

// Limits holds advisory usage limits for a provider. They are preserved and
// round-tripped but not enforced here; enforcement belongs to the invoking
// layer.
type Limits struct {
	MonthlyQuota       int     `json:"monthly_quota" yaml:"monthly_quota"`
	ConcurrentRequests int     `json:"concurrent_requests" yaml:"concurrent_requests"`
	CostPerRequest     float64 `json:"cost_per_request" yaml:"cost_per_request"`
}

// DefaultLimits returns the advisory limits applied when a provider is
// registered without explicit ones.
func DefaultLimits() Limits {
	return Limits{
		MonthlyQuota:       1000,
		ConcurrentRequests: 5,
		CostPerRequest:     0.03,
	}
}

// ServiceProvider is a configured external capability source: an AI engine,
// a scraper, or an analyzer. Lower Priority values are tried first; ties are
// broken by creation order.
type ServiceProvider struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         ServiceType    `json:"type"`
	IsActive     bool           `json:"is_active"`
	Priority     int            `json:"priority"`
	Capabilities []Operation    `json:"capabilities"`
	Config       ProviderConfig `json:"config"`
	Limits       Limits         `json:"limits"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Supports reports whether the provider claims the given operation.
func (p *ServiceProvider) Supports(op Operation) bool {
	for _, c := range p.Capabilities {
		if c == op {
			return true
		}
	}
	return false
}
