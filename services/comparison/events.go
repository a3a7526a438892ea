package comparison

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services"
	"github.com/upb/ai-racers/services/providers"
)

// event is one change to the result set. apply runs on the event goroutine
// and returns the results it changed.
type event interface {
	apply(o *Orchestrator) []models.ComparisonResult
}

// ticket identifies one dispatch of a pair
type ticket struct {
	pair       models.Pair
	generation uint64
}

type beginEvent struct {
	submission Submission
	pairs      []models.Pair
	start      time.Time
	reply      chan<- []ticket
}

func (e beginEvent) apply(o *Orchestrator) []models.ComparisonResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	sub := e.submission
	sub.Pairs = e.pairs
	o.submission = &sub
	o.entries = make(map[string]*entry, len(e.pairs))
	o.order = make([]string, 0, len(e.pairs))

	tickets := make([]ticket, 0, len(e.pairs))
	updates := make([]models.ComparisonResult, 0, len(e.pairs))
	for _, pair := range e.pairs {
		result := models.NewPendingResult(pair)
		result.MarkAsLoading(e.start)

		gen := o.nextGeneration()
		o.entries[pair.Key()] = &entry{result: result, generation: gen}
		o.order = append(o.order, pair.Key())

		tickets = append(tickets, ticket{pair: pair, generation: gen})
		updates = append(updates, result)
	}

	e.reply <- tickets
	return updates
}

type refreshReply struct {
	ticket     ticket
	submission Submission
	err        error
}

type refreshEvent struct {
	pair  models.Pair
	start time.Time
	reply chan<- refreshReply
}

func (e refreshEvent) apply(o *Orchestrator) []models.ComparisonResult {
	if o.submission == nil {
		e.reply <- refreshReply{err: services.ErrNoSubmission}
		return nil
	}
	ent, ok := o.entries[e.pair.Key()]
	if !ok {
		e.reply <- refreshReply{err: fmt.Errorf("%w: %s", services.ErrPairNotFound, e.pair.Key())}
		return nil
	}

	o.mu.Lock()
	ent.result.MarkAsLoading(e.start)
	ent.generation = o.nextGeneration()
	result := ent.result
	o.mu.Unlock()

	e.reply <- refreshReply{
		ticket:     ticket{pair: e.pair, generation: ent.generation},
		submission: *o.submission,
	}
	return []models.ComparisonResult{result}
}

type settleEvent struct {
	ticket ticket
	resp   *providers.ComparisonAPIResponse
	end    time.Time
	// dispatched is false when the pair failed before reaching a provider
	dispatched bool
}

func (e settleEvent) apply(o *Orchestrator) []models.ComparisonResult {
	ent, ok := o.entries[e.ticket.pair.Key()]
	if !ok || ent.generation != e.ticket.generation {
		o.logger.Debug("discarding stale result",
			zap.String("pair", e.ticket.pair.Key()),
			zap.Uint64("generation", e.ticket.generation),
		)
		return nil
	}

	resp := e.resp
	if resp == nil {
		resp = &providers.ComparisonAPIResponse{Success: false, Error: "Unknown error", Kind: services.ErrorTypeInternal}
	}

	o.mu.Lock()
	switch {
	case resp.Success:
		ent.result.MarkAsSucceeded(resp.Response, resp.DurationMs, resp.TokenUsage, e.end)
	case e.dispatched:
		duration := resp.DurationMs
		ent.result.MarkAsFailed(resp.Error, &duration, e.end)
	default:
		ent.result.MarkAsFailed(resp.Error, nil, e.end)
	}
	result := ent.result
	o.mu.Unlock()

	if !resp.Success {
		o.logger.Info("pair failed",
			zap.String("pair", e.ticket.pair.Key()),
			zap.String("kind", string(resp.Kind)),
			zap.String("error", resp.Error),
		)
	}
	return []models.ComparisonResult{result}
}

type selectEvent struct {
	pair  models.Pair
	reply chan<- bool
}

func (e selectEvent) apply(o *Orchestrator) []models.ComparisonResult {
	if _, ok := o.entries[e.pair.Key()]; ok {
		e.reply <- false
		return nil
	}

	result := models.NewPendingResult(e.pair)
	o.mu.Lock()
	o.entries[e.pair.Key()] = &entry{result: result, generation: o.nextGeneration()}
	o.order = append(o.order, e.pair.Key())
	o.mu.Unlock()

	e.reply <- true
	return []models.ComparisonResult{result}
}

type deselectEvent struct {
	pair  models.Pair
	reply chan<- bool
}

func (e deselectEvent) apply(o *Orchestrator) []models.ComparisonResult {
	key := e.pair.Key()
	if _, ok := o.entries[key]; !ok {
		e.reply <- false
		return nil
	}

	o.mu.Lock()
	delete(o.entries, key)
	for i, k := range o.order {
		if k == key {
			o.order = append(o.order[:i:i], o.order[i+1:]...)
			break
		}
	}
	o.mu.Unlock()

	e.reply <- true
	return nil
}

type resetEvent struct {
	reply chan<- bool
}

func (e resetEvent) apply(o *Orchestrator) []models.ComparisonResult {
	o.mu.Lock()
	o.entries = make(map[string]*entry)
	o.order = nil
	o.submission = nil
	o.mu.Unlock()

	e.reply <- true
	return nil
}

// snapshotEvent is a barrier: it is applied after every event sent before it
type snapshotEvent struct {
	keys  []string
	reply chan<- []models.ComparisonResult
}

func (e snapshotEvent) apply(o *Orchestrator) []models.ComparisonResult {
	results := make([]models.ComparisonResult, 0, len(e.keys))
	for _, key := range e.keys {
		if ent, ok := o.entries[key]; ok {
			results = append(results, ent.result)
		}
	}
	e.reply <- results
	return nil
}
