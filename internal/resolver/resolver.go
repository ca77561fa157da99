// Package resolver resolves a named service's configuration, checking process
// environment variables first and the persistent store second, decrypting
// at-rest credentials transparently.
package resolver

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-hub/internal/model"
	"github.com/sells-group/provider-hub/internal/secrets"
	"github.com/sells-group/provider-hub/internal/store"
)

// ErrNotFound means no configuration exists for the requested service in
// either the environment or the store.
var ErrNotFound = eris.New("resolver: config not found")

type cacheKey struct {
	name string
	typ  model.ServiceType
}

// Resolver looks up provider configurations with an env-first fallback chain
// and caches successful resolutions for the life of the process. Registry
// writes must call Invalidate for the affected provider.
type Resolver struct {
	store  store.Store
	cipher *secrets.Cipher

	mu    sync.RWMutex
	cache map[cacheKey]model.ResolvedConfig
}

// New creates a Resolver over the given store and cipher.
func New(st store.Store, cipher *secrets.Cipher) *Resolver {
	return &Resolver{
		store:  st,
		cipher: cipher,
		cache:  make(map[cacheKey]model.ResolvedConfig),
	}
}

// Resolve returns the configuration for (name, type). Precedence is
// environment, then provider row, then the legacy system_config table;
// ErrNotFound when none of them has it.
func (r *Resolver) Resolve(ctx context.Context, name string, typ model.ServiceType) (*model.ResolvedConfig, error) {
	key := cacheKey{name: name, typ: typ}

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		out := cached.Clone()
		return &out, nil
	}

	resolved, err := r.resolve(ctx, name, typ)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = resolved.Clone()
	r.mu.Unlock()

	return resolved, nil
}

// Invalidate drops the cached resolution for (name, type). Call it after any
// write to that provider's configuration.
func (r *Resolver) Invalidate(name string, typ model.ServiceType) {
	r.mu.Lock()
	delete(r.cache, cacheKey{name: name, typ: typ})
	r.mu.Unlock()
}

func (r *Resolver) resolve(ctx context.Context, name string, typ model.ServiceType) (*model.ResolvedConfig, error) {
	if resolved := resolveFromEnv(name, typ); resolved != nil {
		return resolved, nil
	}

	resolved, err := r.resolveFromStore(ctx, name, typ)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	resolved, err = r.resolveFromSystemConfig(ctx, name, typ)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	return nil, eris.Wrapf(ErrNotFound, "%s/%s", typ, name)
}

// EnvPrefix computes the environment variable prefix for (type, name):
// upper-cased, with each non-alphanumeric character replaced by an
// underscore. AI_ENGINE / "Claude 3" becomes AI_ENGINE_CLAUDE_3, and
// "x--y" becomes X__Y.
func EnvPrefix(name string, typ model.ServiceType) string {
	return sanitizeEnvToken(string(typ)) + "_" + sanitizeEnvToken(name)
}

func sanitizeEnvToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func resolveFromEnv(name string, typ model.ServiceType) *model.ResolvedConfig {
	prefix := EnvPrefix(name, typ)

	apiKey := os.Getenv(prefix + "_API_KEY")
	if apiKey == "" {
		return nil
	}

	cfg := model.ProviderConfig{
		APIKey:  apiKey,
		BaseURL: os.Getenv(prefix + "_BASE_URL"),
	}
	if typ == model.TypeAIEngine {
		temperature := envFloat(prefix+"_TEMPERATURE", model.DefaultTemperature)
		cfg.AI = &model.AIEngineConfig{
			Model:       os.Getenv(prefix + "_MODEL"),
			MaxTokens:   envInt(prefix+"_MAX_TOKENS", model.DefaultMaxTokens),
			Temperature: &temperature,
		}
	}

	capabilities := model.DefaultCapabilities(typ)
	if raw := os.Getenv(prefix + "_CAPABILITIES"); raw != "" {
		capabilities = nil
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				capabilities = append(capabilities, model.Operation(part))
			}
		}
	}

	return &model.ResolvedConfig{
		ProviderName: name,
		Type:         typ,
		Config:       cfg,
		Capabilities: capabilities,
		Limits: model.Limits{
			MonthlyQuota:       envInt(prefix+"_MONTHLY_QUOTA", 1000),
			ConcurrentRequests: envInt(prefix+"_CONCURRENT_REQUESTS", 5),
			CostPerRequest:     envFloat(prefix+"_COST_PER_REQUEST", 0.03),
		},
		Source: model.SourceEnv,
	}
}

func (r *Resolver) resolveFromStore(ctx context.Context, name string, typ model.ServiceType) (*model.ResolvedConfig, error) {
	p, err := r.store.FindProvider(ctx, name, typ)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, eris.Wrapf(store.ErrNotFound, "resolver: provider %s/%s inactive", typ, name)
	}

	cfg := p.Config
	cfg.APIKey = r.decryptOrSentinel(cfg.APIKey, name)

	capabilities := p.Capabilities
	if len(capabilities) == 0 {
		capabilities = model.DefaultCapabilities(typ)
	}

	return &model.ResolvedConfig{
		ProviderName: p.Name,
		Type:         p.Type,
		Config:       cfg,
		Capabilities: capabilities,
		Limits:       p.Limits,
		Source:       model.SourceDatabase,
	}, nil
}

func (r *Resolver) resolveFromSystemConfig(ctx context.Context, name string, typ model.ServiceType) (*model.ResolvedConfig, error) {
	key := strings.ToLower(EnvPrefix(name, typ)) + "_api_key"
	entry, err := r.store.GetSystemConfig(ctx, key)
	if err != nil {
		return nil, err
	}

	apiKey := entry.Value
	if entry.IsEncrypted || secrets.IsEncrypted(apiKey) {
		apiKey = r.decryptOrSentinel(apiKey, name)
	}

	return &model.ResolvedConfig{
		ProviderName: name,
		Type:         typ,
		Config:       model.ProviderConfig{APIKey: apiKey},
		Capabilities: model.DefaultCapabilities(typ),
		Limits:       model.DefaultLimits(),
		Source:       model.SourceDatabase,
	}, nil
}

// decryptOrSentinel decrypts an at-rest credential. A decrypt failure yields
// the masked sentinel instead of an error so list/report callers still get
// the rest of the record; invocation paths check CredentialUsable and skip.
func (r *Resolver) decryptOrSentinel(value, name string) string {
	plain, err := r.cipher.Decrypt(value)
	if err != nil {
		zap.L().Warn("resolver: credential decrypt failed",
			zap.String("provider", name),
			zap.Error(err),
		)
		return model.CredentialSentinel
	}
	return plain
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return fallback
}
