package usecase

import (
	"sync"
	"testing"
)

func TestMonitorConcurrentRecording(t *testing.T) {
	m := NewMonitor()

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				m.RecordRequest("a2a", "general", "model-x", 10, 5)
				m.RecordFallback()
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	want := int64(workers * perWorker)
	if snap.Requests != want {
		t.Errorf("Requests = %d, want %d", snap.Requests, want)
	}
	if snap.Fallbacks != want {
		t.Errorf("Fallbacks = %d, want %d", snap.Fallbacks, want)
	}
	if snap.PromptTokens != want*10 || snap.OutputTokens != want*5 {
		t.Errorf("tokens = %d/%d, want %d/%d",
			snap.PromptTokens, snap.OutputTokens, want*10, want*5)
	}
	if snap.ByStrategy["a2a"] != want {
		t.Errorf("ByStrategy[a2a] = %d, want %d", snap.ByStrategy["a2a"], want)
	}
}

func TestMonitorSnapshotIsCopy(t *testing.T) {
	m := NewMonitor()
	m.RecordRequest("direct", "general", "model-x", 1, 1)

	snap := m.Snapshot()
	snap.ByStrategy["direct"] = 999
	snap.ByAgent["injected"] = 1

	fresh := m.Snapshot()
	if fresh.ByStrategy["direct"] != 1 {
		t.Errorf("ByStrategy[direct] = %d, want 1 (snapshot must not alias)", fresh.ByStrategy["direct"])
	}
	if _, ok := fresh.ByAgent["injected"]; ok {
		t.Error("snapshot map writes leaked into the monitor")
	}
}

func TestMonitorFailureAndCancellationCounters(t *testing.T) {
	m := NewMonitor()
	m.RecordFailure()
	m.RecordFailure()
	m.RecordCancellation()

	snap := m.Snapshot()
	if snap.Failures != 2 {
		t.Errorf("Failures = %d, want 2", snap.Failures)
	}
	if snap.Cancellations != 1 {
		t.Errorf("Cancellations = %d, want 1", snap.Cancellations)
	}
}
