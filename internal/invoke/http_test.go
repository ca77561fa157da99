package invoke

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-hub/internal/model"
)

func scraperConfig(baseURL string) model.ResolvedConfig {
	return model.ResolvedConfig{
		ProviderName: "jina-reader",
		Type:         model.TypeScraper,
		Config: model.ProviderConfig{
			APIKey:  "sk-scraper",
			BaseURL: baseURL,
			Scraper: &model.ScraperConfig{RenderJS: true},
		},
		Source: model.SourceDatabase,
	}
}

func TestHTTPInvoker_SendsAuthAndQueryParams(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_, _ = w.Write([]byte("page body"))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker()
	resp, err := inv.Invoke(context.Background(), scraperConfig(srv.URL), Request{URL: "https://example.com"})
	require.NoError(t, err)

	assert.Equal(t, "page body", resp.Text)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, got)
	assert.Equal(t, "Bearer sk-scraper", got.Header.Get("Authorization"))
	assert.Equal(t, "provider-hub/1.0", got.Header.Get("User-Agent"))
	assert.Equal(t, "https://example.com", got.URL.Query().Get("url"))
	assert.Equal(t, "true", got.URL.Query().Get("render_js"))
}

func TestHTTPInvoker_AnalyzerDepthParam(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	cfg := model.ResolvedConfig{
		ProviderName: "site-analyzer",
		Type:         model.TypeSiteAnalyzer,
		Config: model.ProviderConfig{
			APIKey:   "sk-analyzer",
			BaseURL:  srv.URL,
			Analyzer: &model.AnalyzerConfig{Depth: 3},
		},
	}

	inv := NewHTTPInvoker()
	_, err := inv.Invoke(context.Background(), cfg, Request{URL: "https://example.com"})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "3", got.URL.Query().Get("depth"))
	assert.Empty(t, got.URL.Query().Get("render_js"))
}

func TestHTTPInvoker_RetriesTransientStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker()
	resp, err := inv.Invoke(context.Background(), scraperConfig(srv.URL), Request{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
	assert.Equal(t, 3, calls)
}

func TestHTTPInvoker_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker()
	_, err := inv.Invoke(context.Background(), scraperConfig(srv.URL), Request{URL: "https://example.com"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestHTTPInvoker_RequiresBaseURL(t *testing.T) {
	inv := NewHTTPInvoker()
	_, err := inv.Invoke(context.Background(), scraperConfig(""), Request{URL: "https://example.com"})
	assert.Error(t, err)
}

func TestHTTPInvoker_RequiresTargetURL(t *testing.T) {
	inv := NewHTTPInvoker()
	_, err := inv.Invoke(context.Background(), scraperConfig("https://r.jina.ai"), Request{})
	assert.Error(t, err)
}

func TestHTTPInvoker_SharesLimiterPerHost(t *testing.T) {
	inv := NewHTTPInvoker()
	a := inv.limiterFor("https://r.jina.ai/fetch?x=1")
	b := inv.limiterFor("https://r.jina.ai/other")
	c := inv.limiterFor("https://api.firecrawl.dev/scrape")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
