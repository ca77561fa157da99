// Package registry owns the durable catalog of service providers and their
// operation mappings.
package registry

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-hub/internal/model"
	"github.com/sells-group/provider-hub/internal/resolver"
	"github.com/sells-group/provider-hub/internal/secrets"
	"github.com/sells-group/provider-hub/internal/store"
	"github.com/sells-group/provider-hub/internal/syncer"
)

// Registry manages ServiceProvider rows: creation, credential encryption,
// priority edits (with mapping propagation), and activation state.
type Registry struct {
	store    store.Store
	cipher   *secrets.Cipher
	resolver *resolver.Resolver
	syncer   *syncer.Syncer

	// mu serializes priority edits per provider so a concurrent SetPriority
	// cannot interleave with the synchronizer's propagate step.
	mu keyedMutex
}

// New creates a Registry.
func New(st store.Store, cipher *secrets.Cipher, res *resolver.Resolver, sync *syncer.Syncer) *Registry {
	return &Registry{store: st, cipher: cipher, resolver: res, syncer: sync}
}

// UpsertInput is the write payload for Upsert. Config.APIKey is plaintext;
// the registry encrypts it before anything touches the store.
type UpsertInput struct {
	Name         string               `json:"name"`
	Type         model.ServiceType    `json:"type"`
	Config       model.ProviderConfig `json:"config"`
	Capabilities []model.Operation    `json:"capabilities,omitempty"`
	Limits       *model.Limits        `json:"limits,omitempty"`
}

// Upsert creates or updates a provider keyed by (name, type). New providers
// start active with priority 1; updates preserve the existing priority and
// active flag. The resolver cache entry for the provider is invalidated
// either way.
func (r *Registry) Upsert(ctx context.Context, in UpsertInput) (*model.ServiceProvider, error) {
	if in.Name == "" {
		return nil, eris.New("registry: provider name is required")
	}
	if !in.Type.Valid() {
		return nil, eris.Errorf("registry: unknown service type %q", in.Type)
	}
	if err := in.Config.ValidateFor(in.Type); err != nil {
		return nil, err
	}

	if !secrets.IsEncrypted(in.Config.APIKey) {
		sealed, err := r.cipher.Encrypt(in.Config.APIKey)
		if err != nil {
			return nil, err
		}
		in.Config.APIKey = sealed
	}

	capabilities := in.Capabilities
	if len(capabilities) == 0 {
		capabilities = model.DefaultCapabilities(in.Type)
	}
	limits := model.DefaultLimits()
	if in.Limits != nil {
		limits = *in.Limits
	}

	defer r.resolver.Invalidate(in.Name, in.Type)

	existing, err := r.store.FindProvider(ctx, in.Name, in.Type)
	if err != nil && !eris.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		existing.Config = in.Config
		existing.Capabilities = capabilities
		existing.Limits = limits
		if err := r.store.UpdateProvider(ctx, existing); err != nil {
			return nil, err
		}
		zap.L().Info("registry: provider updated",
			zap.String("name", existing.Name),
			zap.String("type", string(existing.Type)),
		)
		return existing, nil
	}

	p := &model.ServiceProvider{
		Name:         in.Name,
		Type:         in.Type,
		IsActive:     true,
		Priority:     1,
		Capabilities: capabilities,
		Config:       in.Config,
		Limits:       limits,
	}
	if err := r.store.CreateProvider(ctx, p); err != nil {
		return nil, err
	}
	zap.L().Info("registry: provider created",
		zap.String("name", p.Name),
		zap.String("type", string(p.Type)),
	)
	return p, nil
}

// Get returns one provider by id.
func (r *Registry) Get(ctx context.Context, id string) (*model.ServiceProvider, error) {
	return r.store.GetProvider(ctx, id)
}

// List returns providers matching the filter, ordered by priority ascending
// with ties broken by creation order.
func (r *Registry) List(ctx context.Context, filter store.ProviderFilter) ([]model.ServiceProvider, error) {
	return r.store.ListProviders(ctx, filter)
}

// SetPriority updates the provider's global priority and, when the value
// actually changed, propagates it to every mapping of that provider.
func (r *Registry) SetPriority(ctx context.Context, id string, priority int) (*model.ServiceProvider, error) {
	unlock := r.mu.lock(id)
	defer unlock()

	p, err := r.store.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Priority == priority {
		return p, nil
	}

	if err := r.store.UpdateProviderPriority(ctx, id, priority); err != nil {
		return nil, err
	}
	p.Priority = priority

	if _, err := r.syncer.SyncOne(ctx, id); err != nil {
		return nil, eris.Wrapf(err, "registry: propagate priority for %s", id)
	}

	r.resolver.Invalidate(p.Name, p.Type)
	return p, nil
}

// SetActive flips the provider's active flag. Inactive providers stay in the
// catalog but are never selected for dispatch.
func (r *Registry) SetActive(ctx context.Context, id string, active bool) error {
	p, err := r.store.GetProvider(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.SetProviderActive(ctx, id, active); err != nil {
		return err
	}
	r.resolver.Invalidate(p.Name, p.Type)
	return nil
}

// Delete removes the provider and every mapping row referencing it.
func (r *Registry) Delete(ctx context.Context, id string) error {
	p, err := r.store.GetProvider(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteProvider(ctx, id); err != nil {
		return err
	}
	r.resolver.Invalidate(p.Name, p.Type)
	zap.L().Info("registry: provider deleted",
		zap.String("name", p.Name),
		zap.String("type", string(p.Type)),
	)
	return nil
}

// keyedMutex provides one mutex per key. Entries are never reaped; the key
// space is bounded by the provider count.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
