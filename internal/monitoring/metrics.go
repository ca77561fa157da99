// Package monitoring tracks dispatch outcomes per operation and provider and
// raises webhook alerts when failure thresholds are breached.
package monitoring

import (
	"sync"
	"time"

	"github.com/sells-group/provider-hub/internal/model"
)

// ProviderMetrics holds counters for one (operation, provider) pair.
type ProviderMetrics struct {
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

// OperationMetrics aggregates one operation across its providers.
type OperationMetrics struct {
	Dispatches int64                      `json:"dispatches"`
	Succeeded  int64                      `json:"succeeded"`
	Exhausted  int64                      `json:"exhausted"`
	Unrouted   int64                      `json:"unrouted"`
	Failovers  int64                      `json:"failovers"`
	Providers  map[string]ProviderMetrics `json:"providers"`
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Operations  map[model.Operation]OperationMetrics `json:"operations"`
	CollectedAt time.Time                            `json:"collected_at"`
}

// Metrics is a process-local counter set fed by the dispatcher. All methods
// are safe for concurrent use.
type Metrics struct {
	mu  sync.Mutex
	ops map[model.Operation]*opCounters
}

type opCounters struct {
	dispatches int64
	succeeded  int64
	exhausted  int64
	unrouted   int64
	failovers  int64
	providers  map[string]*ProviderMetrics
}

// NewMetrics creates an empty metrics set.
func NewMetrics() *Metrics {
	return &Metrics{ops: make(map[model.Operation]*opCounters)}
}

func (m *Metrics) op(operation model.Operation) *opCounters {
	c, ok := m.ops[operation]
	if !ok {
		c = &opCounters{providers: make(map[string]*ProviderMetrics)}
		m.ops[operation] = c
	}
	return c
}

func (m *Metrics) provider(c *opCounters, name string) *ProviderMetrics {
	p, ok := c.providers[name]
	if !ok {
		p = &ProviderMetrics{}
		c.providers[name] = p
	}
	return p
}

// RecordAttempt counts one provider invocation attempt.
func (m *Metrics) RecordAttempt(operation model.Operation, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provider(m.op(operation), provider).Attempts++
}

// RecordSuccess counts a dispatch that a provider served. failovers is the
// number of providers that failed before the winner.
func (m *Metrics) RecordSuccess(operation model.Operation, provider string, failovers int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.op(operation)
	c.dispatches++
	c.succeeded++
	c.failovers += int64(failovers)
	m.provider(c, provider).Successes++
}

// RecordFailure counts one failed provider attempt within a dispatch.
func (m *Metrics) RecordFailure(operation model.Operation, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provider(m.op(operation), provider).Failures++
}

// RecordExhausted counts a dispatch where every candidate failed.
func (m *Metrics) RecordExhausted(operation model.Operation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.op(operation)
	c.dispatches++
	c.exhausted++
}

// RecordUnrouted counts a dispatch rejected because no candidates existed.
func (m *Metrics) RecordUnrouted(operation model.Operation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.op(operation)
	c.dispatches++
	c.unrouted++
}

// Snapshot returns a deep copy of the counters.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &MetricsSnapshot{
		Operations:  make(map[model.Operation]OperationMetrics, len(m.ops)),
		CollectedAt: time.Now().UTC(),
	}
	for op, c := range m.ops {
		om := OperationMetrics{
			Dispatches: c.dispatches,
			Succeeded:  c.succeeded,
			Exhausted:  c.exhausted,
			Unrouted:   c.unrouted,
			Failovers:  c.failovers,
			Providers:  make(map[string]ProviderMetrics, len(c.providers)),
		}
		for name, p := range c.providers {
			om.Providers[name] = *p
		}
		snap.Operations[op] = om
	}
	return snap
}
