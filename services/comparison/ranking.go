package comparison

import (
	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services/pricing"
)

// Rankings marks the extremes of a settled comparison, keyed by pair key.
// It is derived on demand and never stored.
type Rankings struct {
	Fastest       map[string]bool
	Slowest       map[string]bool
	Cheapest      map[string]bool
	MostExpensive map[string]bool

	// Costs holds the estimate of every successful result with known pricing
	Costs map[string]*pricing.CostEstimate
}

func (r *Rankings) IsFastest(key string) bool       { return r.Fastest[key] }
func (r *Rankings) IsSlowest(key string) bool       { return r.Slowest[key] }
func (r *Rankings) IsCheapest(key string) bool      { return r.Cheapest[key] }
func (r *Rankings) IsMostExpensive(key string) bool { return r.MostExpensive[key] }

// Cost returns the estimate for a pair key, or nil
func (r *Rankings) Cost(key string) *pricing.CostEstimate {
	return r.Costs[key]
}

// Rank computes the rankings of a result set. Only successful results take
// part. Speed ranks results with a duration; cost ranks results whose
// estimated total is above zero. Each needs at least two candidates, and
// nothing is marked when every candidate has the same value.
// A nil estimator skips cost ranking.
func Rank(results []models.ComparisonResult, estimator CostEstimator) *Rankings {
	r := &Rankings{
		Fastest:       make(map[string]bool),
		Slowest:       make(map[string]bool),
		Cheapest:      make(map[string]bool),
		MostExpensive: make(map[string]bool),
		Costs:         make(map[string]*pricing.CostEstimate),
	}

	var durations, costs []scored
	for i := range results {
		res := &results[i]
		if res.Status != models.ResultStatusSuccess {
			continue
		}
		if res.DurationMs != nil {
			durations = append(durations, scored{key: res.Key(), value: float64(*res.DurationMs)})
		}
		if estimator == nil {
			continue
		}
		if est := estimator.EstimateCost(res.ProviderID, res.ModelID, res.TokenUsage); est != nil {
			r.Costs[res.Key()] = est
			if est.TotalCost > 0 {
				costs = append(costs, scored{key: res.Key(), value: est.TotalCost})
			}
		}
	}

	markExtremes(durations, r.Fastest, r.Slowest)
	markExtremes(costs, r.Cheapest, r.MostExpensive)
	return r
}

type scored struct {
	key   string
	value float64
}

func markExtremes(candidates []scored, low, high map[string]bool) {
	if len(candidates) < 2 {
		return
	}

	lo, hi := candidates[0].value, candidates[0].value
	for _, c := range candidates[1:] {
		if c.value < lo {
			lo = c.value
		}
		if c.value > hi {
			hi = c.value
		}
	}
	if lo == hi {
		return
	}

	for _, c := range candidates {
		if c.value == lo {
			low[c.key] = true
		}
		if c.value == hi {
			high[c.key] = true
		}
	}
}
