// Package invoke performs the actual provider calls behind dispatch. Each
// invoker takes a resolved configuration and a request, so the same invoker
// serves every provider row of its kind regardless of which credentials won
// resolution.
package invoke

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-hub/internal/dispatch"
	"github.com/sells-group/provider-hub/internal/model"
)

// Request carries the operation payload. AI operations use Prompt and System;
// scraping and analysis operations use URL.
type Request struct {
	Prompt string
	System string
	URL    string
}

// Response is the normalized result of a provider call.
type Response struct {
	Text         string
	Model        string
	StatusCode   int
	InputTokens  int64
	OutputTokens int64
}

// Invoker executes a request against one concrete provider backend.
type Invoker interface {
	Invoke(ctx context.Context, cfg model.ResolvedConfig, req Request) (*Response, error)
}

// Registry selects an invoker for a resolved provider configuration.
type Registry struct {
	anthropic *AnthropicInvoker
	openai    *OpenAIInvoker
	scraper   *HTTPInvoker
}

// NewRegistry builds the default invoker set.
func NewRegistry() *Registry {
	return &Registry{
		anthropic: NewAnthropicInvoker(),
		openai:    NewOpenAIInvoker(),
		scraper:   NewHTTPInvoker(),
	}
}

// For picks the invoker for a resolved configuration. AI engines route on
// provider name (claude and anthropic to the Anthropic SDK, everything else
// to the OpenAI-compatible client, which also covers self-hosted backends
// behind a BaseURL). All other service types speak HTTP.
func (r *Registry) For(cfg model.ResolvedConfig) (Invoker, error) {
	switch cfg.Type {
	case model.TypeAIEngine:
		name := strings.ToLower(cfg.ProviderName)
		if strings.Contains(name, "claude") || strings.Contains(name, "anthropic") {
			return r.anthropic, nil
		}
		return r.openai, nil
	case model.TypeScraper, model.TypeSiteAnalyzer, model.TypeKeywordExtractor, model.TypeContentAnalyzer:
		return r.scraper, nil
	default:
		return nil, eris.Errorf("invoke: no invoker for service type %q", cfg.Type)
	}
}

// Bind adapts a request into the function shape dispatch executes per
// candidate.
func (r *Registry) Bind(req Request) dispatch.InvokeFunc {
	return func(ctx context.Context, cfg model.ResolvedConfig) (any, error) {
		inv, err := r.For(cfg)
		if err != nil {
			return nil, err
		}
		return inv.Invoke(ctx, cfg, req)
	}
}
