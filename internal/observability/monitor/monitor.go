package monitor

import (
	"sync"
	"time"

	"github.com/vatsight/pipeline/internal/core/domain"
)

type outcome struct {
	at         time.Time
	success    bool
	confidence float64
	latency    time.Duration
	category   string
}

// Monitor keeps rolling statistics over recent extraction outcomes. It is the
// read-only source for dashboards and the regression signal for the learning
// loop; snapshots are derived, never hand-edited.
type Monitor struct {
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	outcomes []outcome
}

func New(window time.Duration) *Monitor {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Monitor{window: window, now: time.Now}
}

func (m *Monitor) RecordSuccess(confidence float64, latency time.Duration, diagnostic domain.Diagnostic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome{
		at:         m.now(),
		success:    diagnostic == domain.DiagnosticClean,
		confidence: domain.ClampConfidence(confidence),
		latency:    latency,
	})
	m.pruneLocked()
}

func (m *Monitor) RecordFailure(category string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome{
		at:       m.now(),
		latency:  latency,
		category: category,
	})
	m.pruneLocked()
}

func (m *Monitor) Snapshot() domain.ConfidenceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()

	now := m.now()
	snap := domain.ConfidenceSnapshot{
		ErrorCounts: make(map[string]int),
		WindowStart: now.Add(-m.window),
		WindowEnd:   now,
	}

	var confidenceSum float64
	var latencySum time.Duration
	successes := 0
	for _, o := range m.outcomes {
		snap.TotalAttempts++
		latencySum += o.latency
		if o.success {
			successes++
		}
		confidenceSum += o.confidence
		if o.category != "" {
			snap.ErrorCounts[o.category]++
		}
	}

	if snap.TotalAttempts > 0 {
		snap.SuccessRate = float64(successes) / float64(snap.TotalAttempts)
		snap.AverageConfidence = confidenceSum / float64(snap.TotalAttempts)
		snap.AverageProcessingTimeMs = float64(latencySum) / float64(snap.TotalAttempts) / float64(time.Millisecond)
	}
	return snap
}

// pruneLocked drops outcomes older than the window. Callers hold m.mu.
func (m *Monitor) pruneLocked() {
	cutoff := m.now().Add(-m.window)
	firstKept := len(m.outcomes)
	for i, o := range m.outcomes {
		if o.at.After(cutoff) {
			firstKept = i
			break
		}
	}
	if firstKept > 0 {
		m.outcomes = append(m.outcomes[:0], m.outcomes[firstKept:]...)
	}
}
