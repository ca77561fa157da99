// Package syncer keeps operation-mapping priorities consistent with provider
// priorities and reports drift between the two.
package syncer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/provider-hub/internal/model"
	"github.com/sells-group/provider-hub/internal/store"
)

// SyncState tags a provider's mappings as in or out of step with its
// priority. Drift is a reportable condition, not an error.
type SyncState string

const (
	StateSynced  SyncState = "SYNCED"
	StateDrifted SyncState = "DRIFTED"
)

// DriftedMapping identifies one mapping whose priority diverged.
type DriftedMapping struct {
	MappingID        string          `json:"mapping_id"`
	Operation        model.Operation `json:"operation"`
	MappingPriority  int             `json:"mapping_priority"`
	ProviderPriority int             `json:"provider_priority"`
}

// ProviderSyncResult reports one provider's share of a bulk sync.
type ProviderSyncResult struct {
	ProviderID    string `json:"provider_id"`
	ProviderName  string `json:"provider_name"`
	Priority      int    `json:"priority"`
	MappingsCount int    `json:"mappings_count"`
	UpdatedCount  int64  `json:"updated_count"`
}

// SyncReport aggregates a SyncAll run.
type SyncReport struct {
	Providers       []ProviderSyncResult `json:"providers"`
	TotalProviders  int                  `json:"total_providers"`
	TotalMappings   int                  `json:"total_mappings"`
	UpdatedMappings int64                `json:"updated_mappings"`
}

// ProviderStatus is the read-only drift report for one provider.
type ProviderStatus struct {
	ProviderID       string           `json:"provider_id"`
	ProviderName     string           `json:"provider_name"`
	Priority         int              `json:"priority"`
	State            SyncState        `json:"state"`
	SyncedMappings   int              `json:"synced_mappings"`
	UnsyncedMappings int              `json:"unsynced_mappings"`
	SyncPercentage   float64          `json:"sync_percentage"`
	Drifted          []DriftedMapping `json:"drifted,omitempty"`
}

// StatusReport aggregates drift across every provider.
type StatusReport struct {
	Providers             []ProviderStatus `json:"providers"`
	TotalProviders        int              `json:"total_providers"`
	TotalMappings         int              `json:"total_mappings"`
	SyncedMappings        int              `json:"synced_mappings"`
	OverallSyncPercentage float64          `json:"overall_sync_percentage"`
}

// syncAllParallelism bounds concurrent per-provider syncs. Providers are
// independent, so no cross-provider ordering is required.
const syncAllParallelism = 4

// Syncer propagates provider priorities to mapping rows.
type Syncer struct {
	store store.Store
}

// New creates a Syncer over the given store.
func New(st store.Store) *Syncer {
	return &Syncer{store: st}
}

// SyncOne aligns every mapping referencing the provider with the provider
// row's current priority and returns the number of rows changed. The store
// reads the priority inside the update statement, so a snapshot read here
// could never race a concurrent priority edit. Idempotent: a second call
// with nothing drifted updates nothing.
func (s *Syncer) SyncOne(ctx context.Context, providerID string) (int64, error) {
	n, err := s.store.AlignMappingPriorities(ctx, providerID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		zap.L().Info("syncer: propagated provider priority",
			zap.String("provider_id", providerID),
			zap.Int64("mappings_updated", n),
		)
	}
	return n, nil
}

// SyncAll aligns every provider's mappings with that provider's current
// priority and reports per-provider and aggregate counts.
func (s *Syncer) SyncAll(ctx context.Context) (*SyncReport, error) {
	providers, err := s.store.ListProviders(ctx, store.ProviderFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "syncer: list providers")
	}

	results := make([]ProviderSyncResult, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncAllParallelism)
	for i, p := range providers {
		g.Go(func() error {
			mappings, err := s.store.ListMappingsForProvider(gctx, p.ID)
			if err != nil {
				return err
			}
			// Alignment reads the live row priority, not the snapshot in p,
			// so a priority edit landing mid-sync is never clobbered.
			updated, err := s.store.AlignMappingPriorities(gctx, p.ID)
			if err != nil {
				return err
			}
			results[i] = ProviderSyncResult{
				ProviderID:    p.ID,
				ProviderName:  p.Name,
				Priority:      p.Priority,
				MappingsCount: len(mappings),
				UpdatedCount:  updated,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "syncer: sync all")
	}

	report := &SyncReport{
		Providers:      results,
		TotalProviders: len(providers),
	}
	for _, r := range results {
		report.TotalMappings += r.MappingsCount
		report.UpdatedMappings += r.UpdatedCount
	}

	zap.L().Info("syncer: bulk sync complete",
		zap.Int("providers", report.TotalProviders),
		zap.Int("mappings", report.TotalMappings),
		zap.Int64("updated", report.UpdatedMappings),
	)
	return report, nil
}

// Status computes the drift report without writing anything. A provider with
// zero mappings counts as fully synced.
func (s *Syncer) Status(ctx context.Context) (*StatusReport, error) {
	providers, err := s.store.ListProviders(ctx, store.ProviderFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "syncer: list providers")
	}

	report := &StatusReport{TotalProviders: len(providers)}
	for _, p := range providers {
		mappings, err := s.store.ListMappingsForProvider(ctx, p.ID)
		if err != nil {
			return nil, err
		}

		status := ProviderStatus{
			ProviderID:   p.ID,
			ProviderName: p.Name,
			Priority:     p.Priority,
			State:        StateSynced,
		}
		for _, m := range mappings {
			if m.Priority == p.Priority {
				status.SyncedMappings++
				continue
			}
			status.UnsyncedMappings++
			status.Drifted = append(status.Drifted, DriftedMapping{
				MappingID:        m.ID,
				Operation:        m.Operation,
				MappingPriority:  m.Priority,
				ProviderPriority: p.Priority,
			})
		}
		if status.UnsyncedMappings > 0 {
			status.State = StateDrifted
		}

		total := status.SyncedMappings + status.UnsyncedMappings
		if total == 0 {
			status.SyncPercentage = 100
		} else {
			status.SyncPercentage = float64(status.SyncedMappings) / float64(total) * 100
		}

		report.Providers = append(report.Providers, status)
		report.TotalMappings += total
		report.SyncedMappings += status.SyncedMappings
	}

	if report.TotalMappings == 0 {
		report.OverallSyncPercentage = 100
	} else {
		report.OverallSyncPercentage = float64(report.SyncedMappings) / float64(report.TotalMappings) * 100
	}
	return report, nil
}
