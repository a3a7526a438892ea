package observability

import (
	"sort"
	"sync"

	"github.com/upb/ai-racers/models"
)

// Metrics collects statistics about settled results.
type Metrics interface {
	RecordResult(result models.ComparisonResult)
}

// ProviderStats aggregates the settled results of one provider
type ProviderStats struct {
	Provider     models.ProviderID
	Successes    int
	Failures     int
	Timed        int
	TotalMs      int64
	InputTokens  int
	OutputTokens int
}

// AverageMs returns the mean duration of the results that reported one
func (s ProviderStats) AverageMs() int64 {
	if s.Timed == 0 {
		return 0
	}
	return s.TotalMs / int64(s.Timed)
}

// Collector is an in-memory Metrics implementation, safe for concurrent use.
// Unsettled results are ignored.
type Collector struct {
	mu    sync.Mutex
	stats map[models.ProviderID]*ProviderStats
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{stats: make(map[models.ProviderID]*ProviderStats)}
}

// RecordResult implements Metrics
func (c *Collector) RecordResult(result models.ComparisonResult) {
	if !result.IsSettled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stats[result.ProviderID]
	if !ok {
		s = &ProviderStats{Provider: result.ProviderID}
		c.stats[result.ProviderID] = s
	}
	if result.Status == models.ResultStatusSuccess {
		s.Successes++
	} else {
		s.Failures++
	}
	if result.DurationMs != nil {
		s.Timed++
		s.TotalMs += *result.DurationMs
	}
	s.InputTokens += result.TokenUsage.Input()
	s.OutputTokens += result.TokenUsage.Output()
}

// Snapshot returns a copy of the statistics, sorted by provider
func (c *Collector) Snapshot() []ProviderStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ProviderStats, 0, len(c.stats))
	for _, s := range c.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
