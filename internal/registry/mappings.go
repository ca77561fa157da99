package registry

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-hub/internal/model"
	"github.com/sells-group/provider-hub/internal/store"
)

// Mappings manages the operation-to-provider association table.
type Mappings struct {
	store store.Store
}

// NewMappings creates a Mappings service.
func NewMappings(st store.Store) *Mappings {
	return &Mappings{store: st}
}

// Create associates a provider with an operation. A nil priority inherits
// the provider's current global priority, which is the synced state. Fails
// with the store's conflict error when the pair already exists.
func (m *Mappings) Create(ctx context.Context, op model.Operation, providerID string, priority *int, enabled bool) (*model.OperationMapping, error) {
	if op == "" {
		return nil, eris.New("registry: operation is required")
	}

	p, err := m.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !p.Supports(op) {
		// Advisory only: the provider may still be mapped, but the operator
		// probably wants to know the capability set disagrees.
		zap.L().Warn("registry: mapping operation outside provider capabilities",
			zap.String("operation", string(op)),
			zap.String("provider", p.Name),
		)
	}

	prio := p.Priority
	if priority != nil {
		prio = *priority
	}

	mapping := &model.OperationMapping{
		Operation:  op,
		ProviderID: providerID,
		IsEnabled:  enabled,
		Priority:   prio,
	}
	if err := m.store.CreateMapping(ctx, mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// Get returns one mapping by id.
func (m *Mappings) Get(ctx context.Context, id string) (*model.OperationMapping, error) {
	return m.store.GetMapping(ctx, id)
}

// ListForOperation returns the mapping+provider pairs for an operation,
// ordered by provider priority first, mapping priority second.
func (m *Mappings) ListForOperation(ctx context.Context, op model.Operation) ([]model.MappingCandidate, error) {
	return m.store.ListMappingsForOperation(ctx, op)
}

// ListForProvider returns every mapping referencing the provider.
func (m *Mappings) ListForProvider(ctx context.Context, providerID string) ([]model.OperationMapping, error) {
	return m.store.ListMappingsForProvider(ctx, providerID)
}

// SetEnabled flips a mapping's kill switch without touching the provider.
func (m *Mappings) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return m.store.SetMappingEnabled(ctx, id, enabled)
}

// SetPriority edits the mapping-local priority. This deliberately does not
// touch the provider; the result may be drift, which the syncer reports.
func (m *Mappings) SetPriority(ctx context.Context, id string, priority int) error {
	return m.store.SetMappingPriority(ctx, id, priority)
}

// Delete removes one mapping.
func (m *Mappings) Delete(ctx context.Context, id string) error {
	return m.store.DeleteMapping(ctx, id)
}
