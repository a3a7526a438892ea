package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestPair_Key(t *testing.T) {
	pair := Pair{ProviderID: ProviderOpenAI, ModelID: "gpt-4o-mini"}

	assert.Equal(t, "openai-gpt-4o-mini", pair.Key())
	assert.Equal(t, "openai:gpt-4o-mini", pair.String())
}

func TestParsePair(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Pair
		wantErr bool
	}{
		{name: "simple", input: "openai:gpt-4o", want: Pair{ProviderOpenAI, "gpt-4o"}},
		{name: "ollama tag keeps colon", input: "ollama:llama3:8b", want: Pair{ProviderOllama, "llama3:8b"}},
		{name: "provider lowercased", input: "Anthropic:claude-3-5-haiku", want: Pair{ProviderAnthropic, "claude-3-5-haiku"}},
		{name: "missing model", input: "openai:", wantErr: true},
		{name: "no separator", input: "gpt-4o", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePair(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProviderID_IsValid(t *testing.T) {
	for _, id := range AllProviders() {
		assert.True(t, id.IsValid(), id)
	}
	assert.False(t, ProviderID("bedrock").IsValid())
}

func TestComparisonResult_Lifecycle(t *testing.T) {
	result := NewPendingResult(Pair{ProviderID: ProviderGemini, ModelID: "gemini-1.5-flash"})
	assert.Equal(t, ResultStatusPending, result.Status)
	assert.False(t, result.IsSettled())

	start := time.Now()
	result.MarkAsLoading(start)
	assert.Equal(t, ResultStatusLoading, result.Status)
	require.NotNil(t, result.StartTime)
	assert.Nil(t, result.EndTime)

	usage := &TokenUsage{PromptTokens: intPtr(10), CompletionTokens: intPtr(5)}
	result.MarkAsSucceeded("hello", 120, usage, start.Add(120*time.Millisecond))
	assert.Equal(t, ResultStatusSuccess, result.Status)
	assert.Equal(t, "hello", result.Response)
	assert.Empty(t, result.Error)
	require.NotNil(t, result.DurationMs)
	assert.Equal(t, int64(120), *result.DurationMs)
	assert.True(t, result.IsSettled())

	// a refresh clears the previous outcome
	result.MarkAsLoading(start.Add(time.Second))
	assert.Empty(t, result.Response)
	assert.Nil(t, result.DurationMs)
	assert.Nil(t, result.TokenUsage)

	result.MarkAsFailed("boom", nil, start.Add(2*time.Second))
	assert.Equal(t, ResultStatusError, result.Status)
	assert.Equal(t, "boom", result.Error)
	assert.Empty(t, result.Response)
	assert.Nil(t, result.DurationMs)
}

func TestTokenUsage_Accessors(t *testing.T) {
	var nilUsage *TokenUsage
	assert.Equal(t, 0, nilUsage.Input())
	assert.Equal(t, 0, nilUsage.Total())

	usage := &TokenUsage{PromptTokens: intPtr(7), CompletionTokens: intPtr(3)}
	assert.Equal(t, 7, usage.Input())
	assert.Equal(t, 3, usage.Output())
	assert.Equal(t, 10, usage.Total())

	usage.TotalTokens = intPtr(12)
	assert.Equal(t, 12, usage.Total())
}

func TestAdvancedParameters_IsEmpty(t *testing.T) {
	var params *AdvancedParameters
	assert.True(t, params.IsEmpty())
	assert.True(t, (&AdvancedParameters{}).IsEmpty())

	temp := 0.0
	assert.False(t, (&AdvancedParameters{Temperature: &temp}).IsEmpty())
	assert.False(t, (&AdvancedParameters{StopSequences: []string{"END"}}).IsEmpty())
}

func TestNewComparisonRun(t *testing.T) {
	results := []ComparisonResult{NewPendingResult(Pair{ProviderOllama, "llama3"})}

	run := NewComparisonRun("smoke", "sys", "hi", nil, results)

	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, "comparison_runs", run.TableName())
	assert.Len(t, run.Results, 1)
	assert.False(t, run.CreatedAt.IsZero())
	assert.Equal(t, 0, run.SuccessCount())

	// the run owns its copy of the results
	results[0].Status = ResultStatusSuccess
	assert.Equal(t, ResultStatusPending, run.Results[0].Status)

	raw, err := run.ParametersJSON()
	require.NoError(t, err)
	assert.Nil(t, raw)
}
