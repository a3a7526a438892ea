package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services"
)

// MockAdapter is a test implementation of the Adapter interface
type MockAdapter struct {
	id       models.ProviderID
	result   *SendResult
	err      error
	panicMsg string
	delay    time.Duration
	calls    int
}

func NewMockAdapter(id models.ProviderID) *MockAdapter {
	return &MockAdapter{
		id:     id,
		result: Succeeded("This is a mock response", nil),
	}
}

func (m *MockAdapter) ID() models.ProviderID { return m.id }

func (m *MockAdapter) Name() string { return "Mock " + string(m.id) }

func (m *MockAdapter) Send(ctx context.Context, req *CanonicalRequest) (*SendResult, error) {
	m.calls++
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return Failed(services.ErrorTypeTransport, ctx.Err().Error()), nil
		}
	}
	return m.result, m.err
}

func (m *MockAdapter) TestConnection(ctx context.Context, creds Credentials) (*ConnectionResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &ConnectionResult{Success: true, Models: []string{"mock-model-1"}}, nil
}

// steppingClock advances by step on every call
func steppingClock(step time.Duration) func() time.Time {
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}

func newTestRouter(t *testing.T, adapters ...Adapter) *Router {
	t.Helper()
	r, err := NewRouter(zap.NewNop(), adapters, WithClock(steppingClock(250*time.Millisecond)))
	require.NoError(t, err)
	return r
}

func TestNewRouter(t *testing.T) {
	t.Run("duplicate provider", func(t *testing.T) {
		_, err := NewRouter(zap.NewNop(), []Adapter{
			NewMockAdapter(models.ProviderOpenAI),
			NewMockAdapter(models.ProviderOpenAI),
		})
		assert.ErrorIs(t, err, ErrProviderAlreadyRegistered)
	})

	t.Run("nil adapter", func(t *testing.T) {
		_, err := NewRouter(zap.NewNop(), []Adapter{nil})
		assert.ErrorIs(t, err, ErrNilAdapter)
	})

	t.Run("providers listed sorted", func(t *testing.T) {
		r := newTestRouter(t, NewMockAdapter(models.ProviderXAI), NewMockAdapter(models.ProviderAnthropic))
		assert.Equal(t, []models.ProviderID{models.ProviderAnthropic, models.ProviderXAI}, r.Providers())

		_, ok := r.Adapter(models.ProviderXAI)
		assert.True(t, ok)
		_, ok = r.Adapter(models.ProviderGemini)
		assert.False(t, ok)
	})
}

func TestRouter_Dispatch(t *testing.T) {
	prompt := int(7)
	usage := &models.TokenUsage{PromptTokens: &prompt}

	tests := []struct {
		name      string
		adapter   *MockAdapter
		provider  models.ProviderID
		wantOK    bool
		wantError string
		wantKind  services.ErrorType
	}{
		{
			name:     "success attaches duration",
			adapter:  &MockAdapter{id: models.ProviderOpenAI, result: Succeeded("hi", usage)},
			provider: models.ProviderOpenAI,
			wantOK:   true,
		},
		{
			name:      "expected failure passes through",
			adapter:   &MockAdapter{id: models.ProviderOpenAI, result: MissingAPIKey("OpenAI")},
			provider:  models.ProviderOpenAI,
			wantError: "API key is required for OpenAI",
			wantKind:  services.ErrorTypeConfiguration,
		},
		{
			name:      "unknown provider",
			adapter:   NewMockAdapter(models.ProviderOpenAI),
			provider:  models.ProviderID("bedrock"),
			wantError: "Unknown provider: bedrock",
			wantKind:  services.ErrorTypeUnknownProvider,
		},
		{
			name:      "unexpected error",
			adapter:   &MockAdapter{id: models.ProviderOpenAI, err: errors.New("boom")},
			provider:  models.ProviderOpenAI,
			wantError: "boom",
			wantKind:  services.ErrorTypeInternal,
		},
		{
			name:      "panic is recovered",
			adapter:   &MockAdapter{id: models.ProviderOpenAI, panicMsg: "adapter exploded"},
			provider:  models.ProviderOpenAI,
			wantError: "adapter exploded",
			wantKind:  services.ErrorTypeInternal,
		},
		{
			name:      "nil result",
			adapter:   &MockAdapter{id: models.ProviderOpenAI},
			provider:  models.ProviderOpenAI,
			wantError: "Unknown error",
			wantKind:  services.ErrorTypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, tt.adapter)

			resp := r.Dispatch(context.Background(), &CanonicalRequest{
				ProviderID: tt.provider,
				ModelID:    "m",
				UserPrompt: "hi",
			})

			require.NotNil(t, resp)
			assert.Equal(t, tt.wantOK, resp.Success)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Equal(t, tt.wantKind, resp.Kind)
			assert.Equal(t, int64(250), resp.DurationMs)
			if tt.wantOK {
				assert.Equal(t, "hi", resp.Response)
				assert.Equal(t, usage, resp.TokenUsage)
			}
		})
	}
}

func TestRouter_TestConnection(t *testing.T) {
	r := newTestRouter(t, NewMockAdapter(models.ProviderOllama), &MockAdapter{id: models.ProviderXAI, err: errors.New("broken")})

	ok := r.TestConnection(context.Background(), models.ProviderOllama, Credentials{})
	assert.True(t, ok.Success)

	failed := r.TestConnection(context.Background(), models.ProviderXAI, Credentials{APIKey: "xai-123456789"})
	assert.False(t, failed.Success)
	assert.Equal(t, "broken", failed.Error)

	unknown := r.TestConnection(context.Background(), models.ProviderID("nope"), Credentials{})
	assert.Equal(t, "Unknown provider: nope", unknown.Error)
}

func TestElapsedMs(t *testing.T) {
	start := time.Now()
	assert.Equal(t, int64(0), ElapsedMs(start, start))
	assert.Equal(t, int64(2), ElapsedMs(start, start.Add(1500*time.Microsecond)))
	assert.Equal(t, int64(1), ElapsedMs(start, start.Add(1400*time.Microsecond)))
}

func TestCanonicalRequest_Messages(t *testing.T) {
	req := &CanonicalRequest{UserPrompt: "hello"}
	assert.Equal(t, []Message{{Role: "user", Content: "hello"}}, req.Messages())

	req.SystemPrompt = "be brief"
	msgs := req.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)

	params := req.Params()
	assert.True(t, params.IsEmpty())
}
