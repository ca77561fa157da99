package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-hub/internal/model"
)

// Sentinel errors shared by both backends. Callers match with errors.Is.
var (
	ErrNotFound = eris.New("store: not found")
	ErrConflict = eris.New("store: conflict")
)

// ProviderFilter specifies criteria for listing providers.
type ProviderFilter struct {
	Type       model.ServiceType `json:"type,omitempty"`
	ActiveOnly bool              `json:"active_only,omitempty"`
}

// SystemConfigEntry is a row in the legacy system_config table, kept as an
// alternate credential source during migration off the old platform.
type SystemConfigEntry struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	IsEncrypted bool   `json:"is_encrypted"`
}

// Store defines the persistence interface for providers, operation mappings
// and legacy system configuration.
type Store interface {
	// Providers
	CreateProvider(ctx context.Context, p *model.ServiceProvider) error
	GetProvider(ctx context.Context, id string) (*model.ServiceProvider, error)
	FindProvider(ctx context.Context, name string, typ model.ServiceType) (*model.ServiceProvider, error)
	UpdateProvider(ctx context.Context, p *model.ServiceProvider) error
	UpdateProviderPriority(ctx context.Context, id string, priority int) error
	SetProviderActive(ctx context.Context, id string, active bool) error
	DeleteProvider(ctx context.Context, id string) error
	ListProviders(ctx context.Context, filter ProviderFilter) ([]model.ServiceProvider, error)

	// Operation mappings
	CreateMapping(ctx context.Context, m *model.OperationMapping) error
	GetMapping(ctx context.Context, id string) (*model.OperationMapping, error)
	ListMappingsForOperation(ctx context.Context, op model.Operation) ([]model.MappingCandidate, error)
	ListMappingsForProvider(ctx context.Context, providerID string) ([]model.OperationMapping, error)
	SetMappingEnabled(ctx context.Context, id string, enabled bool) error
	SetMappingPriority(ctx context.Context, id string, priority int) error
	// AlignMappingPriorities copies the provider's current row priority onto
	// every mapping referencing it, in one statement, so a stale in-memory
	// snapshot of the provider can never be written back.
	AlignMappingPriorities(ctx context.Context, providerID string) (int64, error)
	DeleteMapping(ctx context.Context, id string) error

	// Legacy system config
	GetSystemConfig(ctx context.Context, key string) (*SystemConfigEntry, error)
	SetSystemConfig(ctx context.Context, entry SystemConfigEntry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
