package comparison

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services"
	"github.com/upb/ai-racers/services/providers"
)

// Orchestrator owns the result set of the current comparison.
//
// All mutations are events applied by a single goroutine (run). Dispatches
// happen on their own goroutines and report back through settle events, each
// tagged with the generation of the dispatch that produced it; a settle whose
// generation is no longer current for its pair is discarded, so a slow
// response can never overwrite a newer refresh.
type Orchestrator struct {
	dispatcher  Dispatcher
	credentials CredentialResolver
	logger      *zap.Logger
	now         func() time.Time
	onUpdate    func(models.ComparisonResult)

	events    chan event
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// written only by run; readers take mu.RLock
	mu         sync.RWMutex
	entries    map[string]*entry
	order      []string
	submission *Submission
	generation uint64
}

type entry struct {
	result     models.ComparisonResult
	generation uint64
}

// Option customises an Orchestrator
type Option func(*Orchestrator)

// WithUpdateHook registers a callback invoked after every applied update. It
// runs on the orchestrator's event goroutine and must not call back into the
// orchestrator.
func WithUpdateHook(fn func(models.ComparisonResult)) Option {
	return func(o *Orchestrator) {
		o.onUpdate = fn
	}
}

// WithClock replaces the wall clock used for start and end times
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an orchestrator and starts its event loop. Call
// Close to stop it.
func NewOrchestrator(dispatcher Dispatcher, credentials CredentialResolver, logger *zap.Logger, opts ...Option) *Orchestrator {
	if credentials == nil {
		credentials = CredentialMap{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		dispatcher:  dispatcher,
		credentials: credentials,
		logger:      logger,
		now:         time.Now,
		events:      make(chan event),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		entries:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(o)
	}

	go o.run()
	return o
}

// Close stops the event loop. Calls made after Close return ErrOrchestratorClosed.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.quit)
	})
	<-o.done
}

// Submit replaces the result set with the submission's pairs and races them.
// It returns once every pair has settled, with results in submission order.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) ([]models.ComparisonResult, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	pairs := sub.UniquePairs()

	o.logger.Info("starting comparison",
		zap.String("test_name", sub.TestName),
		zap.Int("pairs", len(pairs)),
	)

	// Step 1: every pair enters loading before anything is dispatched
	reply := make(chan []ticket, 1)
	if err := o.send(beginEvent{submission: sub, pairs: pairs, start: o.now(), reply: reply}); err != nil {
		return nil, err
	}
	var tickets []ticket
	select {
	case tickets = <-reply:
	case <-o.quit:
		return nil, services.ErrOrchestratorClosed
	}

	// Step 2: fan out, one goroutine per pair
	var wg sync.WaitGroup
	for _, t := range tickets {
		wg.Add(1)
		go func(t ticket) {
			defer wg.Done()
			o.dispatch(ctx, &sub, t)
		}(t)
	}
	wg.Wait()

	// Step 3: the snapshot is queued behind every settle event
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key()
	}
	results, err := o.snapshot(keys)
	if err != nil {
		return nil, err
	}

	o.logger.Info("comparison finished",
		zap.String("test_name", sub.TestName),
		zap.Int("pairs", len(pairs)),
	)
	return results, nil
}

// Refresh re-dispatches one pair with the last submission's prompts and parameters
func (o *Orchestrator) Refresh(ctx context.Context, pair models.Pair) (models.ComparisonResult, error) {
	reply := make(chan refreshReply, 1)
	if err := o.send(refreshEvent{pair: pair, start: o.now(), reply: reply}); err != nil {
		return models.ComparisonResult{}, err
	}

	var r refreshReply
	select {
	case r = <-reply:
	case <-o.quit:
		return models.ComparisonResult{}, services.ErrOrchestratorClosed
	}
	if r.err != nil {
		return models.ComparisonResult{}, r.err
	}

	o.logger.Debug("refreshing pair", zap.String("pair", pair.Key()))
	o.dispatch(ctx, &r.submission, r.ticket)

	results, err := o.snapshot([]string{pair.Key()})
	if err != nil {
		return models.ComparisonResult{}, err
	}
	if len(results) == 0 {
		// deselected while in flight
		return models.ComparisonResult{}, fmt.Errorf("%w: %s", services.ErrPairNotFound, pair.Key())
	}
	return results[0], nil
}

// Select adds a pending result for a pair not yet in the result set. It
// reports whether a result was added.
func (o *Orchestrator) Select(pair models.Pair) (bool, error) {
	if !pair.ProviderID.IsValid() {
		return false, fmt.Errorf("%w: %s", services.ErrUnknownProvider, pair.ProviderID)
	}
	reply := make(chan bool, 1)
	if err := o.send(selectEvent{pair: pair, reply: reply}); err != nil {
		return false, err
	}
	return o.awaitBool(reply)
}

// Deselect removes a pair's result. It reports whether a result was removed.
func (o *Orchestrator) Deselect(pair models.Pair) (bool, error) {
	reply := make(chan bool, 1)
	if err := o.send(deselectEvent{pair: pair, reply: reply}); err != nil {
		return false, err
	}
	return o.awaitBool(reply)
}

// Reset clears the result set and the last submission
func (o *Orchestrator) Reset() error {
	reply := make(chan bool, 1)
	if err := o.send(resetEvent{reply: reply}); err != nil {
		return err
	}
	_, err := o.awaitBool(reply)
	return err
}

// Results returns a snapshot of every result in insertion order
func (o *Orchestrator) Results() []models.ComparisonResult {
	o.mu.RLock()
	defer o.mu.RUnlock()

	results := make([]models.ComparisonResult, 0, len(o.order))
	for _, key := range o.order {
		results = append(results, o.entries[key].result)
	}
	return results
}

// Result returns the current result of one pair
func (o *Orchestrator) Result(pair models.Pair) (models.ComparisonResult, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	e, ok := o.entries[pair.Key()]
	if !ok {
		return models.ComparisonResult{}, false
	}
	return e.result, true
}

// LastSubmission returns the submission the result set belongs to
func (o *Orchestrator) LastSubmission() (Submission, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.submission == nil {
		return Submission{}, false
	}
	return *o.submission, true
}

// dispatch runs one pair and reports the outcome as a settle event
func (o *Orchestrator) dispatch(ctx context.Context, sub *Submission, t ticket) {
	creds, ok := o.credentials.Credentials(t.pair.ProviderID)
	if !ok {
		o.logger.Warn("provider not configured", zap.String("provider", string(t.pair.ProviderID)))
		_ = o.send(settleEvent{
			ticket: t,
			resp: &providers.ComparisonAPIResponse{
				Success: false,
				Error:   services.ErrProviderNotConfigured.Message,
				Kind:    services.ErrorTypeConfiguration,
			},
			end: o.now(),
		})
		return
	}

	resp := o.dispatcher.Dispatch(ctx, sub.request(t.pair, creds))
	_ = o.send(settleEvent{ticket: t, resp: resp, end: o.now(), dispatched: true})
}

func (o *Orchestrator) snapshot(keys []string) ([]models.ComparisonResult, error) {
	reply := make(chan []models.ComparisonResult, 1)
	if err := o.send(snapshotEvent{keys: keys, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case results := <-reply:
		return results, nil
	case <-o.quit:
		return nil, services.ErrOrchestratorClosed
	}
}

func (o *Orchestrator) awaitBool(reply chan bool) (bool, error) {
	select {
	case v := <-reply:
		return v, nil
	case <-o.quit:
		return false, services.ErrOrchestratorClosed
	}
}

func (o *Orchestrator) send(ev event) error {
	select {
	case o.events <- ev:
		return nil
	case <-o.quit:
		return services.ErrOrchestratorClosed
	}
}

func (o *Orchestrator) run() {
	defer close(o.done)
	for {
		select {
		case ev := <-o.events:
			updates := ev.apply(o)
			if o.onUpdate != nil {
				for _, u := range updates {
					o.onUpdate(u)
				}
			}
		case <-o.quit:
			return
		}
	}
}

// nextGeneration is only called from run
func (o *Orchestrator) nextGeneration() uint64 {
	o.generation++
	return o.generation
}
