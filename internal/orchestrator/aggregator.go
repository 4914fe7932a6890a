package orchestrator

import (
	"sync"
)

// Summary is the batch-level rollup.
type Summary struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	PassRate float64 `json:"pass_rate"`
}

// AllPassed reports whether every recorded scenario passed. This is the CLI
// exit-code contract.
func (s Summary) AllPassed() bool {
	return s.Total > 0 && s.Passed == s.Total
}

// Aggregator accumulates scenario results across a batch run. Pure
// accumulation: no side effects beyond its own state, and Summary is
// idempotent between Records.
type Aggregator struct {
	mu      sync.Mutex
	results []ScenarioResult
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Record stores one scenario result. Safe for concurrent use.
func (a *Aggregator) Record(result ScenarioResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, result)
}

// Results returns a copy of the recorded results in record order.
func (a *Aggregator) Results() []ScenarioResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ScenarioResult, len(a.results))
	copy(out, a.results)
	return out
}

// Summary computes the rollup over everything recorded so far.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{Total: len(a.results)}
	for _, result := range a.results {
		switch result.Verdict {
		case VerdictPass:
			s.Passed++
		case VerdictSkip:
			s.Skipped++
		default:
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total)
	}
	return s
}
