package comparison

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services"
	"github.com/upb/ai-racers/services/providers"
)

var (
	pairOpenAI    = models.Pair{ProviderID: models.ProviderOpenAI, ModelID: "gpt-4o-mini"}
	pairGemini    = models.Pair{ProviderID: models.ProviderGemini, ModelID: "gemini-1.5-flash"}
	pairAnthropic = models.Pair{ProviderID: models.ProviderAnthropic, ModelID: "claude-3-5-haiku-20241022"}
)

func allCredentials() CredentialMap {
	return CredentialMap{
		models.ProviderOpenAI:    {APIKey: "sk-openai"},
		models.ProviderGemini:    {APIKey: "gemini-key"},
		models.ProviderAnthropic: {APIKey: "sk-ant"},
	}
}

func echoDispatcher(calls *int32) DispatcherFunc {
	return func(ctx context.Context, req *providers.CanonicalRequest) *providers.ComparisonAPIResponse {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		return &providers.ComparisonAPIResponse{
			Success:    true,
			Response:   string(req.ProviderID) + " says hi",
			DurationMs: 42,
		}
	}
}

func newTestOrchestrator(t *testing.T, d Dispatcher, creds CredentialResolver, opts ...Option) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(d, creds, nil, opts...)
	t.Cleanup(o.Close)
	return o
}

func submission(pairs ...models.Pair) Submission {
	return Submission{
		TestName:     "greeting",
		SystemPrompt: "Be brief.",
		UserPrompt:   "Say hi",
		Pairs:        pairs,
	}
}

func TestOrchestrator_Submit(t *testing.T) {
	var calls int32
	o := newTestOrchestrator(t, echoDispatcher(&calls), allCredentials())

	results, err := o.Submit(context.Background(), submission(pairOpenAI, pairGemini, pairOpenAI, pairAnthropic))
	require.NoError(t, err)

	require.Len(t, results, 3, "duplicates collapse to one result per pair")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	keys := make(map[string]bool)
	for _, r := range results {
		assert.False(t, keys[r.Key()], "duplicate key %s", r.Key())
		keys[r.Key()] = true

		assert.Equal(t, models.ResultStatusSuccess, r.Status)
		assert.Equal(t, string(r.ProviderID)+" says hi", r.Response)
		assert.Empty(t, r.Error)
		require.NotNil(t, r.DurationMs)
		assert.Equal(t, int64(42), *r.DurationMs)
		assert.NotNil(t, r.StartTime)
		assert.NotNil(t, r.EndTime)
	}

	assert.Equal(t, pairOpenAI.Key(), results[0].Key())
	assert.Equal(t, pairGemini.Key(), results[1].Key())
	assert.Equal(t, pairAnthropic.Key(), results[2].Key())
	assert.Equal(t, results, o.Results())

	last, ok := o.LastSubmission()
	require.True(t, ok)
	assert.Len(t, last.Pairs, 3)
}

func TestOrchestrator_Submit_PassesPromptAndParameters(t *testing.T) {
	temp := 0.3
	var got *providers.CanonicalRequest
	d := DispatcherFunc(func(ctx context.Context, req *providers.CanonicalRequest) *providers.ComparisonAPIResponse {
		got = req
		return &providers.ComparisonAPIResponse{Success: true, Response: "ok"}
	})
	o := newTestOrchestrator(t, d, allCredentials())

	sub := submission(pairOpenAI)
	sub.AdvancedParameters = &models.AdvancedParameters{Temperature: &temp}
	_, err := o.Submit(context.Background(), sub)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, models.ProviderOpenAI, got.ProviderID)
	assert.Equal(t, "gpt-4o-mini", got.ModelID)
	assert.Equal(t, "Be brief.", got.SystemPrompt)
	assert.Equal(t, "Say hi", got.UserPrompt)
	assert.Equal(t, "sk-openai", got.Credentials.APIKey)
	assert.Equal(t, 0.3, *got.AdvancedParameters.Temperature)
}

func TestOrchestrator_Submit_Validation(t *testing.T) {
	tooHot := 3.0

	tests := []struct {
		name  string
		sub   Submission
		check func(t *testing.T, err error)
	}{
		{
			name: "blank prompt",
			sub:  Submission{UserPrompt: "   ", Pairs: []models.Pair{pairOpenAI}},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, services.ErrEmptyPrompt)
			},
		},
		{
			name: "no pairs",
			sub:  Submission{UserPrompt: "hi"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, services.ErrNoPairs)
			},
		},
		{
			name: "pair without model",
			sub:  Submission{UserPrompt: "hi", Pairs: []models.Pair{{ProviderID: models.ProviderOpenAI}}},
			check: func(t *testing.T, err error) {
				assert.True(t, services.IsValidationError(err))
			},
		},
		{
			name: "unknown provider",
			sub: Submission{
				UserPrompt: "hi",
				Pairs: []models.Pair{
					{ProviderID: models.ProviderOpenAI, ModelID: "gpt-4"},
					{ProviderID: "openai-gpt", ModelID: "4"},
				},
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, services.ErrUnknownProvider)
				assert.Contains(t, err.Error(), "openai-gpt")
			},
		},
		{
			name: "temperature out of range",
			sub: Submission{
				UserPrompt:         "hi",
				Pairs:              []models.Pair{pairOpenAI},
				AdvancedParameters: &models.AdvancedParameters{Temperature: &tooHot},
			},
			check: func(t *testing.T, err error) {
				assert.True(t, services.IsValidationError(err))
				assert.Contains(t, err.Error(), "temperature")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			o := newTestOrchestrator(t, echoDispatcher(&calls), allCredentials())

			results, err := o.Submit(context.Background(), tt.sub)
			require.Error(t, err)
			assert.Nil(t, results)
			tt.check(t, err)

			assert.Zero(t, atomic.LoadInt32(&calls))
			assert.Empty(t, o.Results())
		})
	}
}

func TestOrchestrator_Submit_MissingConfiguration(t *testing.T) {
	var dispatched []models.ProviderID
	var mu sync.Mutex
	d := DispatcherFunc(func(ctx context.Context, req *providers.CanonicalRequest) *providers.ComparisonAPIResponse {
		mu.Lock()
		dispatched = append(dispatched, req.ProviderID)
		mu.Unlock()
		return &providers.ComparisonAPIResponse{Success: true, Response: "ok", DurationMs: 10}
	})

	creds := CredentialMap{models.ProviderOpenAI: {APIKey: "sk-openai"}}
	o := newTestOrchestrator(t, d, creds)

	results, err := o.Submit(context.Background(), submission(pairOpenAI, pairGemini))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, models.ResultStatusSuccess, results[0].Status)

	assert.Equal(t, models.ResultStatusError, results[1].Status)
	assert.Equal(t, "Provider configuration not found", results[1].Error)
	assert.Nil(t, results[1].DurationMs, "a pair that never reached a provider has no duration")
	assert.NotNil(t, results[1].EndTime)

	assert.Equal(t, []models.ProviderID{models.ProviderOpenAI}, dispatched)
}

func TestOrchestrator_Submit_FailureIsIsolated(t *testing.T) {
	d := DispatcherFunc(func(ctx context.Context, req *providers.CanonicalRequest) *providers.ComparisonAPIResponse {
		if req.ProviderID == models.ProviderGemini {
			return &providers.ComparisonAPIResponse{
				Success:    false,
				Error:      "quota exhausted",
				Kind:       services.ErrorTypeProtocol,
				DurationMs: 30,
			}
		}
		return &providers.ComparisonAPIResponse{Success: true, Response: "fine", DurationMs: 20}
	})
	o := newTestOrchestrator(t, d, allCredentials())

	results, err := o.Submit(context.Background(), submission(pairOpenAI, pairGemini, pairAnthropic))
	require.NoError(t, err)

	assert.Equal(t, models.ResultStatusSuccess, results[0].Status)
	assert.Equal(t, models.ResultStatusError, results[1].Status)
	assert.Equal(t, "quota exhausted", results[1].Error)
	assert.Empty(t, results[1].Response)
	require.NotNil(t, results[1].DurationMs)
	assert.Equal(t, int64(30), *results[1].DurationMs)
	assert.Equal(t, models.ResultStatusSuccess, results[2].Status)
}

func TestOrchestrator_Submit_NilResponse(t *testing.T) {
	d := DispatcherFunc(func(ctx context.Context, req *providers.CanonicalRequest) *providers.ComparisonAPIResponse {
		return nil
	})
	o := newTestOrchestrator(t, d, allCredentials())

	results, err := o.Submit(context.Background(), submission(pairOpenAI))
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusError, results[0].Status)
	assert.Equal(t, "Unknown error", results[0].Error)
}

func TestOrchestrator_Submit_AllLoadingBeforeDispatch(t *testing.T) {
	var mu sync.Mutex
	var updates []models.ComparisonResult
	hook := func(r models.ComparisonResult) {
		mu.Lock()
		updates = append(updates, r)
		mu.Unlock()
	}

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	o := newTestOrchestrator(t, echoDispatcher(nil), allCredentials(),
		WithUpdateHook(hook),
		WithClock(func() time.Time { return start }),
	)

	_, err := o.Submit(context.Background(), submission(pairOpenAI, pairGemini, pairAnthropic))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 6, "one loading and one settled update per pair")
	for _, u := range updates[:3] {
		assert.Equal(t, models.ResultStatusLoading, u.Status)
		require.NotNil(t, u.StartTime)
		assert.Equal(t, start, *u.StartTime)
	}
	for _, u := range updates[3:] {
		assert.Equal(t, models.ResultStatusSuccess, u.Status)
	}
}

func TestOrchestrator_Refresh(t *testing.T) {
	var openaiCalls, geminiCalls int32
	d := DispatcherFunc(func(ctx context.Context, req *providers.CanonicalRequest) *providers.ComparisonAPIResponse {
		switch req.ProviderID {
		case models.ProviderOpenAI:
			n := atomic.AddInt32(&openaiCalls, 1)
			if n == 1 {
				return &providers.ComparisonAPIResponse{Success: false, Error: "boom", DurationMs: 5}
			}
			return &providers.ComparisonAPIResponse{Success: true, Response: "recovered", DurationMs: 15}
		default:
			atomic.AddInt32(&geminiCalls, 1)
			return &providers.ComparisonAPIResponse{Success: true, Response: "gemini", DurationMs: 25}
		}
	})
	o := newTestOrchestrator(t, d, allCredentials())

	before, err := o.Submit(context.Background(), submission(pairOpenAI, pairGemini))
	require.NoError(t, err)
	require.Equal(t, models.ResultStatusError, before[0].Status)

	refreshed, err := o.Refresh(context.Background(), pairOpenAI)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusSuccess, refreshed.Status)
	assert.Equal(t, "recovered", refreshed.Response)
	assert.Empty(t, refreshed.Error)
	assert.Equal(t, int64(15), *refreshed.DurationMs)

	sibling, ok := o.Result(pairGemini)
	require.True(t, ok)
	assert.Equal(t, before[1], sibling, "refresh must not touch sibling results")
	assert.Equal(t, int32(1), atomic.LoadInt32(&geminiCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&openaiCalls))
}

func TestOrchestrator_Refresh_Errors(t *testing.T) {
	o := newTestOrchestrator(t, echoDispatcher(nil), allCredentials())

	_, err := o.Refresh(context.Background(), pairOpenAI)
	assert.ErrorIs(t, err, services.ErrNoSubmission)

	_, err = o.Submit(context.Background(), submission(pairOpenAI))
	require.NoError(t, err)

	_, err = o.Refresh(context.Background(), pairGemini)
	assert.ErrorIs(t, err, services.ErrPairNotFound)
	assert.True(t, services.IsNotFoundError(err))
}

func TestOrchestrator_Refresh_DiscardsStaleResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	d := DispatcherFunc(func(ctx context.Context, req *providers.CanonicalRequest) *providers.ComparisonAPIResponse {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
			return &providers.ComparisonAPIResponse{Success: true, Response: "stale", DurationMs: 900}
		}
		return &providers.ComparisonAPIResponse{Success: true, Response: "fresh", DurationMs: 100}
	})
	o := newTestOrchestrator(t, d, allCredentials())

	type submitOutcome struct {
		results []models.ComparisonResult
		err     error
	}
	done := make(chan submitOutcome, 1)
	go func() {
		results, err := o.Submit(context.Background(), submission(pairOpenAI))
		done <- submitOutcome{results, err}
	}()

	<-started
	refreshed, err := o.Refresh(context.Background(), pairOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "fresh", refreshed.Response)

	close(release)
	outcome := <-done
	require.NoError(t, outcome.err)

	require.Len(t, outcome.results, 1)
	assert.Equal(t, "fresh", outcome.results[0].Response, "the older dispatch settled last and must be discarded")
	assert.Equal(t, int64(100), *outcome.results[0].DurationMs)

	current, ok := o.Result(pairOpenAI)
	require.True(t, ok)
	assert.Equal(t, "fresh", current.Response)
}

func TestOrchestrator_SelectDeselectReset(t *testing.T) {
	o := newTestOrchestrator(t, echoDispatcher(nil), allCredentials())

	added, err := o.Select(pairOpenAI)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = o.Select(pairOpenAI)
	require.NoError(t, err)
	assert.False(t, added, "a pair appears at most once")

	r, ok := o.Result(pairOpenAI)
	require.True(t, ok)
	assert.Equal(t, models.ResultStatusPending, r.Status)

	_, err = o.Select(models.Pair{ProviderID: "openai-gpt", ModelID: "4"})
	assert.ErrorIs(t, err, services.ErrUnknownProvider)
	assert.Len(t, o.Results(), 1)

	_, err = o.Submit(context.Background(), submission(pairOpenAI, pairGemini))
	require.NoError(t, err)

	removed, err := o.Deselect(pairGemini)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = o.Deselect(pairGemini)
	require.NoError(t, err)
	assert.False(t, removed)

	results := o.Results()
	require.Len(t, results, 1)
	assert.Equal(t, pairOpenAI.Key(), results[0].Key())

	require.NoError(t, o.Reset())
	assert.Empty(t, o.Results())
	_, ok = o.LastSubmission()
	assert.False(t, ok)
}

func TestOrchestrator_Close(t *testing.T) {
	o := NewOrchestrator(echoDispatcher(nil), allCredentials(), nil)
	o.Close()
	o.Close()

	_, err := o.Submit(context.Background(), submission(pairOpenAI))
	assert.True(t, errors.Is(err, services.ErrOrchestratorClosed))

	_, err = o.Select(pairOpenAI)
	assert.ErrorIs(t, err, services.ErrOrchestratorClosed)
}
