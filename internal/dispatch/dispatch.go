// Package dispatch drives the sequential try-each-until-success loop across
// the providers eligible for an operation.
package dispatch

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-hub/internal/model"
	"github.com/sells-group/provider-hub/internal/monitoring"
	"github.com/sells-group/provider-hub/internal/resolver"
	"github.com/sells-group/provider-hub/internal/store"
)

// InvokeFunc performs one provider call with a resolved configuration. The
// real implementation is an external vendor call; the dispatcher treats it
// as a black box that returns a result or an error.
type InvokeFunc func(ctx context.Context, cfg model.ResolvedConfig) (any, error)

// Result reports a successful dispatch: what came back and which provider
// served it.
type Result struct {
	Result       any    `json:"result"`
	ProviderUsed string `json:"provider_used"`
	Priority     int    `json:"priority"`
	Attempts     int    `json:"attempts"`
}

// Dispatcher resolves an operation's candidate providers and tries them in
// priority order. Each call keeps purely local iteration state, so any
// number of dispatches may run concurrently.
type Dispatcher struct {
	store    store.Store
	resolver *resolver.Resolver
	metrics  *monitoring.Metrics
}

// New creates a Dispatcher. metrics may be nil.
func New(st store.Store, res *resolver.Resolver, metrics *monitoring.Metrics) *Dispatcher {
	return &Dispatcher{store: st, resolver: res, metrics: metrics}
}

// Dispatch tries each eligible provider for the operation, strictly
// sequentially in priority order, stopping at the first success.
//
// Candidates are never tried in parallel: provider calls cost money, and a
// lower-priority provider must not be invoked while a higher-priority
// attempt could still succeed. Every per-candidate failure is recoverable;
// only an empty candidate list (NoProvidersError) or full exhaustion
// (ExhaustedError) surfaces to the caller, and neither should be retried
// automatically.
func (d *Dispatcher) Dispatch(ctx context.Context, operation model.Operation, invoke InvokeFunc) (*Result, error) {
	candidates, err := d.buildCandidates(ctx, operation)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		if d.metrics != nil {
			d.metrics.RecordUnrouted(operation)
		}
		return nil, &NoProvidersError{Operation: string(operation)}
	}

	log := zap.L().With(zap.String("operation", string(operation)))

	var lastErr error
	lastProvider := ""
	attempts := 0

	for i, c := range candidates {
		// A dispatch-level deadline aborts between attempts, never mid
		// invocation.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, eris.Wrapf(ctxErr, "dispatch: %s aborted after %d attempts", operation, attempts)
		}

		cfg, err := d.resolver.Resolve(ctx, c.Provider.Name, c.Provider.Type)
		if err != nil {
			// Unresolvable credentials are a provider failure, not a fatal
			// one; move on to the next candidate.
			log.Warn("dispatch: credential resolution failed",
				zap.String("provider", c.Provider.Name),
				zap.Error(err),
			)
			lastErr = err
			lastProvider = c.Provider.Name
			continue
		}
		if !cfg.CredentialUsable() {
			log.Warn("dispatch: credential unusable, skipping provider",
				zap.String("provider", c.Provider.Name),
			)
			lastErr = eris.Errorf("dispatch: provider %s credential unusable", c.Provider.Name)
			lastProvider = c.Provider.Name
			continue
		}

		attempts++
		if d.metrics != nil {
			d.metrics.RecordAttempt(operation, c.Provider.Name)
		}

		result, err := invoke(ctx, *cfg)
		if err == nil {
			if d.metrics != nil {
				d.metrics.RecordSuccess(operation, c.Provider.Name, i)
			}
			if i > 0 {
				log.Info("dispatch: served by fallback provider",
					zap.String("provider", c.Provider.Name),
					zap.Int("position", i+1),
					zap.Int("attempts", attempts),
				)
			}
			return &Result{
				Result:       result,
				ProviderUsed: c.Provider.Name,
				Priority:     c.Provider.Priority,
				Attempts:     attempts,
			}, nil
		}

		if d.metrics != nil {
			d.metrics.RecordFailure(operation, c.Provider.Name)
		}
		log.Warn("dispatch: provider failed, trying next",
			zap.String("provider", c.Provider.Name),
			zap.Int("position", i+1),
			zap.Int("remaining", len(candidates)-i-1),
			zap.Error(err),
		)
		lastErr = err
		lastProvider = c.Provider.Name
	}

	if d.metrics != nil {
		d.metrics.RecordExhausted(operation)
	}
	return nil, &ExhaustedError{
		Operation:    string(operation),
		Attempts:     len(candidates),
		LastProvider: lastProvider,
		LastErr:      lastErr,
	}
}

// buildCandidates lists the operation's mappings and filters to enabled
// mappings of active providers, preserving the store's two-level priority
// order.
func (d *Dispatcher) buildCandidates(ctx context.Context, operation model.Operation) ([]model.MappingCandidate, error) {
	all, err := d.store.ListMappingsForOperation(ctx, operation)
	if err != nil {
		return nil, eris.Wrapf(err, "dispatch: list candidates for %s", operation)
	}

	eligible := all[:0:0]
	for _, c := range all {
		if c.Mapping.IsEnabled && c.Provider.IsActive {
			eligible = append(eligible, c)
		}
	}
	return eligible, nil
}
