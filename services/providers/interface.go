package providers

import (
	"context"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services"
)

// Adapter translates a canonical request into one provider's wire protocol
type Adapter interface {
	// ID returns the provider identifier the adapter is registered under
	ID() models.ProviderID

	// Name returns the display name used in user-facing messages
	Name() string

	// Send performs exactly one request against the provider. Every expected
	// failure is reported through SendResult; the error return is reserved
	// for unexpected failures.
	Send(ctx context.Context, req *CanonicalRequest) (*SendResult, error)

	// TestConnection verifies the credentials and lists the available models
	TestConnection(ctx context.Context, creds Credentials) (*ConnectionResult, error)
}

// Credentials are the locally held settings needed to reach one provider
type Credentials struct {
	// APIKey authenticates the caller. Ollama needs none.
	APIKey string
	// BaseURL overrides the provider's default API root
	BaseURL string
	// Endpoint is the Ollama server address
	Endpoint string
}

// CanonicalRequest is the provider-neutral request. Adapters must not modify it.
type CanonicalRequest struct {
	ProviderID         models.ProviderID
	ModelID            string
	SystemPrompt       string
	UserPrompt         string
	Credentials        Credentials
	AdvancedParameters *models.AdvancedParameters
}

// Message represents a single chat message
type Message struct {
	Role    string
	Content string
}

// Messages returns the chat transcript: the system prompt (when set) followed by the user prompt
func (r *CanonicalRequest) Messages() []Message {
	msgs := make([]Message, 0, 2)
	if r.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: r.SystemPrompt})
	}
	return append(msgs, Message{Role: "user", Content: r.UserPrompt})
}

// Params returns the advanced parameters, never nil
func (r *CanonicalRequest) Params() models.AdvancedParameters {
	if r.AdvancedParameters == nil {
		return models.AdvancedParameters{}
	}
	return *r.AdvancedParameters
}

// SendResult is the outcome of one adapter call
type SendResult struct {
	Success    bool
	Response   string
	Error      string
	Kind       services.ErrorType
	TokenUsage *models.TokenUsage
}

// Succeeded builds a successful SendResult
func Succeeded(response string, usage *models.TokenUsage) *SendResult {
	return &SendResult{Success: true, Response: response, TokenUsage: usage}
}

// Failed builds a failed SendResult of the given kind
func Failed(kind services.ErrorType, message string) *SendResult {
	return &SendResult{Success: false, Error: message, Kind: kind}
}

// ComparisonAPIResponse is a SendResult with the measured wall-clock duration
type ComparisonAPIResponse struct {
	Success    bool               `json:"success"`
	Response   string             `json:"response,omitempty"`
	Error      string             `json:"error,omitempty"`
	Kind       services.ErrorType `json:"kind,omitempty"`
	DurationMs int64              `json:"durationMs"`
	TokenUsage *models.TokenUsage `json:"tokenUsage,omitempty"`
}

// ConnectionResult is the outcome of a credential check
type ConnectionResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Models  []string `json:"models,omitempty"`
	Error   string   `json:"error,omitempty"`
}
