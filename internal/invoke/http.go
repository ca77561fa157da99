package invoke

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/provider-hub/internal/model"
	"github.com/sells-group/provider-hub/internal/resilience"
)

const (
	httpInvokeTimeout = 30 * time.Second
	maxResponseBytes  = 4 << 20
	userAgent         = "provider-hub/1.0"
)

// HTTPInvoker calls scraper and analyzer providers over plain HTTP. Requests
// go to the provider's BaseURL with the target passed as a query parameter,
// rate limited per host so bursts against one provider cannot starve another.
type HTTPInvoker struct {
	client *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHTTPInvoker() *HTTPInvoker {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPInvoker{
		client: &http.Client{
			Timeout:   httpInvokeTimeout,
			Transport: transport,
		},
		limiters: make(map[string]*rate.Limiter),
	}
}

func (h *HTTPInvoker) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(10, 10)
		h.limiters[host] = lim
	}
	return lim
}

func (h *HTTPInvoker) Invoke(ctx context.Context, cfg model.ResolvedConfig, req Request) (*Response, error) {
	if cfg.Config.BaseURL == "" {
		return nil, eris.Errorf("invoke: provider %q has no base URL", cfg.ProviderName)
	}
	if req.URL == "" {
		return nil, eris.New("invoke: request has no target URL")
	}

	endpoint, err := url.Parse(cfg.Config.BaseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "invoke: parse base URL for %s", cfg.ProviderName)
	}
	q := endpoint.Query()
	q.Set("url", req.URL)
	if cfg.Config.Scraper != nil && cfg.Config.Scraper.RenderJS {
		q.Set("render_js", "true")
	}
	if cfg.Config.Analyzer != nil && cfg.Config.Analyzer.Depth > 0 {
		q.Set("depth", strconv.Itoa(cfg.Config.Analyzer.Depth))
	}
	endpoint.RawQuery = q.Encode()

	return resilience.DoVal(ctx, resilience.DefaultRetryConfig(), cfg.ProviderName,
		func(ctx context.Context) (*Response, error) {
			return h.fetch(ctx, cfg, endpoint.String())
		})
}

func (h *HTTPInvoker) fetch(ctx context.Context, cfg model.ResolvedConfig, target string) (*Response, error) {
	if err := h.limiterFor(target).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "invoke: rate limiter wait")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, eris.Wrap(err, "invoke: build request")
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Authorization", "Bearer "+cfg.Config.APIKey)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if resilience.IsTransient(err) {
			return nil, resilience.NewTransientError(err, 0)
		}
		return nil, eris.Wrapf(err, "invoke: http call via %s", cfg.ProviderName)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := eris.Errorf("invoke: http %d from %s", resp.StatusCode, cfg.ProviderName)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "invoke: read response from %s", cfg.ProviderName)
	}

	return &Response{
		Text:       string(body),
		StatusCode: resp.StatusCode,
	}, nil
}
