package usecase

import (
	"sync"
	"sync/atomic"
)

// Monitor accumulates engine-wide counters. It is injected, not global,
// so tests can assert on it in isolation. All methods are safe for
// concurrent use; counters are simple atomics.
type Monitor struct {
	requests      atomic.Int64
	fallbacks     atomic.Int64
	cancellations atomic.Int64
	failures      atomic.Int64
	promptTokens  atomic.Int64
	outputTokens  atomic.Int64

	mu         sync.Mutex
	byStrategy map[string]int64
	byAgent    map[string]int64
	byModel    map[string]int64
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		byStrategy: make(map[string]int64),
		byAgent:    make(map[string]int64),
		byModel:    make(map[string]int64),
	}
}

// RecordRequest counts one completed request.
func (m *Monitor) RecordRequest(strategy, agentID, model string, promptTokens, outputTokens int) {
	m.requests.Add(1)
	m.promptTokens.Add(int64(promptTokens))
	m.outputTokens.Add(int64(outputTokens))

	m.mu.Lock()
	m.byStrategy[strategy]++
	m.byAgent[agentID]++
	m.byModel[model]++
	m.mu.Unlock()
}

// RecordFallback counts one strategy fallback.
func (m *Monitor) RecordFallback() { m.fallbacks.Add(1) }

// RecordCancellation counts one aborted request.
func (m *Monitor) RecordCancellation() { m.cancellations.Add(1) }

// RecordFailure counts one terminal request failure.
func (m *Monitor) RecordFailure() { m.failures.Add(1) }

// Snapshot is a point-in-time copy of the monitor state.
type Snapshot struct {
	Requests      int64
	Fallbacks     int64
	Cancellations int64
	Failures      int64
	PromptTokens  int64
	OutputTokens  int64
	ByStrategy    map[string]int64
	ByAgent       map[string]int64
	ByModel       map[string]int64
}

// Snapshot returns a copy of all counters.
func (m *Monitor) Snapshot() Snapshot {
	snap := Snapshot{
		Requests:      m.requests.Load(),
		Fallbacks:     m.fallbacks.Load(),
		Cancellations: m.cancellations.Load(),
		Failures:      m.failures.Load(),
		PromptTokens:  m.promptTokens.Load(),
		OutputTokens:  m.outputTokens.Load(),
		ByStrategy:    make(map[string]int64),
		ByAgent:       make(map[string]int64),
		ByModel:       make(map[string]int64),
	}
	m.mu.Lock()
	for k, v := range m.byStrategy {
		snap.ByStrategy[k] = v
	}
	for k, v := range m.byAgent {
		snap.ByAgent[k] = v
	}
	for k, v := range m.byModel {
		snap.ByModel[k] = v
	}
	m.mu.Unlock()
	return snap
}
