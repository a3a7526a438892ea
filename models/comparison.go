package models

import (
	"fmt"
	"strings"
	"time"
)

// ProviderID identifies an LLM provider family
type ProviderID string

const (
	ProviderOpenAI     ProviderID = "openai"
	ProviderGemini     ProviderID = "gemini"
	ProviderAnthropic  ProviderID = "anthropic"
	ProviderXAI        ProviderID = "xai"
	ProviderOllama     ProviderID = "ollama"
	ProviderOpenRouter ProviderID = "openrouter"
)

// AllProviders returns every provider the core knows how to dispatch to, in display order
func AllProviders() []ProviderID {
	return []ProviderID{
		ProviderOpenAI,
		ProviderGemini,
		ProviderAnthropic,
		ProviderXAI,
		ProviderOllama,
		ProviderOpenRouter,
	}
}

// IsValid reports whether the provider ID is one of the known providers
func (p ProviderID) IsValid() bool {
	for _, known := range AllProviders() {
		if p == known {
			return true
		}
	}
	return false
}

// Pair is a (provider, model) selection
type Pair struct {
	ProviderID ProviderID `json:"providerId" validate:"required"`
	ModelID    string     `json:"modelId" validate:"required"`
}

// Key returns the unique identifier of the pair within a result set
func (p Pair) Key() string {
	return string(p.ProviderID) + "-" + p.ModelID
}

// String renders the pair in provider:model form
func (p Pair) String() string {
	return string(p.ProviderID) + ":" + p.ModelID
}

// ParsePair parses "provider:model". Model IDs may contain further colons
// (ollama tags such as "llama3:8b"), so only the first one separates.
func ParsePair(s string) (Pair, error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || provider == "" || model == "" {
		return Pair{}, fmt.Errorf("invalid pair %q: expected provider:model", s)
	}
	return Pair{ProviderID: ProviderID(strings.ToLower(provider)), ModelID: model}, nil
}

// AdvancedParameters holds optional sampling parameters. A nil field means
// "not set" and is omitted from the outbound provider request.
type AdvancedParameters struct {
	Temperature      *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens        *int     `json:"maxTokens,omitempty" validate:"omitempty,gte=1"`
	TopP             *float64 `json:"topP,omitempty" validate:"omitempty,gte=0,lte=1"`
	TopK             *int     `json:"topK,omitempty" validate:"omitempty,gte=0"`
	FrequencyPenalty *float64 `json:"frequencyPenalty,omitempty" validate:"omitempty,gte=-2,lte=2"`
	PresencePenalty  *float64 `json:"presencePenalty,omitempty" validate:"omitempty,gte=-2,lte=2"`
	StopSequences    []string `json:"stopSequences,omitempty"`
}

// IsEmpty reports whether no parameter is set
func (p *AdvancedParameters) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.Temperature == nil && p.MaxTokens == nil && p.TopP == nil && p.TopK == nil &&
		p.FrequencyPenalty == nil && p.PresencePenalty == nil && len(p.StopSequences) == 0
}

// TokenUsage reports token counts for one response. Only fields the provider
// reported are set.
type TokenUsage struct {
	PromptTokens     *int `json:"promptTokens,omitempty"`
	CompletionTokens *int `json:"completionTokens,omitempty"`
	TotalTokens      *int `json:"totalTokens,omitempty"`
	CachedTokens     *int `json:"cachedTokens,omitempty"`
	ReasoningTokens  *int `json:"reasoningTokens,omitempty"`
}

// Input returns the prompt token count, or 0 when unreported
func (u *TokenUsage) Input() int {
	if u == nil || u.PromptTokens == nil {
		return 0
	}
	return *u.PromptTokens
}

// Output returns the completion token count, or 0 when unreported
func (u *TokenUsage) Output() int {
	if u == nil || u.CompletionTokens == nil {
		return 0
	}
	return *u.CompletionTokens
}

// Total returns the total token count, falling back to input+output
func (u *TokenUsage) Total() int {
	if u == nil {
		return 0
	}
	if u.TotalTokens != nil {
		return *u.TotalTokens
	}
	return u.Input() + u.Output()
}

// ResultStatus represents the lifecycle state of a comparison result
type ResultStatus string

const (
	ResultStatusPending ResultStatus = "pending"
	ResultStatusLoading ResultStatus = "loading"
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusError   ResultStatus = "error"
)

// ComparisonResult is the state of one pair in a comparison
type ComparisonResult struct {
	ProviderID ProviderID   `json:"providerId"`
	ModelID    string       `json:"modelId"`
	Status     ResultStatus `json:"status"`
	Response   string       `json:"response,omitempty"`
	Error      string       `json:"error,omitempty"`
	StartTime  *time.Time   `json:"startTime,omitempty"`
	EndTime    *time.Time   `json:"endTime,omitempty"`
	DurationMs *int64       `json:"durationMs,omitempty"`
	TokenUsage *TokenUsage  `json:"tokenUsage,omitempty"`
}

// NewPendingResult creates a result for a pair that has not been dispatched yet
func NewPendingResult(pair Pair) ComparisonResult {
	return ComparisonResult{
		ProviderID: pair.ProviderID,
		ModelID:    pair.ModelID,
		Status:     ResultStatusPending,
	}
}

// Pair returns the (provider, model) pair of the result
func (r *ComparisonResult) Pair() Pair {
	return Pair{ProviderID: r.ProviderID, ModelID: r.ModelID}
}

// Key returns the pair key of the result
func (r *ComparisonResult) Key() string {
	return r.Pair().Key()
}

// MarkAsLoading starts a dispatch and clears everything from the previous one
func (r *ComparisonResult) MarkAsLoading(start time.Time) {
	r.Status = ResultStatusLoading
	r.Response = ""
	r.Error = ""
	r.StartTime = &start
	r.EndTime = nil
	r.DurationMs = nil
	r.TokenUsage = nil
}

// MarkAsSucceeded records a successful response
func (r *ComparisonResult) MarkAsSucceeded(response string, durationMs int64, usage *TokenUsage, end time.Time) {
	r.Status = ResultStatusSuccess
	r.Response = response
	r.Error = ""
	r.EndTime = &end
	r.DurationMs = &durationMs
	r.TokenUsage = usage
}

// MarkAsFailed records a failed dispatch. durationMs is nil when the request
// never reached a provider.
func (r *ComparisonResult) MarkAsFailed(message string, durationMs *int64, end time.Time) {
	r.Status = ResultStatusError
	r.Response = ""
	r.Error = message
	r.EndTime = &end
	r.DurationMs = durationMs
	r.TokenUsage = nil
}

// IsSettled reports whether the result reached a terminal state
func (r *ComparisonResult) IsSettled() bool {
	return r.Status == ResultStatusSuccess || r.Status == ResultStatusError
}
