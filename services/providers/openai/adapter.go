package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services"
	"github.com/upb/ai-racers/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
)

// Options describe a provider that speaks the OpenAI chat completions format
type Options struct {
	// ID is the provider the adapter registers under
	ID models.ProviderID

	// Name is the display name used in messages
	Name string

	// DefaultBaseURL is used when the credentials carry no base URL
	DefaultBaseURL string

	// SupportsTopK sends top_k, which plain OpenAI rejects
	SupportsTopK bool

	// Headers are sent with every request
	Headers map[string]string

	// FormatError builds the message for a non-2xx response. Defaults to providers.ParseErrorMessage.
	FormatError func(resp *providers.HTTPResponse) string

	// RateLimitNote is appended to the rate-limit message of a connection test
	RateLimitNote string
}

// Adapter implements providers.Adapter for OpenAI-compatible APIs
type Adapter struct {
	opts       Options
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates the OpenAI adapter
func New(httpClient *http.Client, logger *zap.Logger) *Adapter {
	return NewCompatible(Options{
		ID:             models.ProviderOpenAI,
		Name:           "OpenAI",
		DefaultBaseURL: defaultBaseURL,
	}, httpClient, logger)
}

// NewCompatible creates an adapter for another provider using the same wire format
func NewCompatible(opts Options, httpClient *http.Client, logger *zap.Logger) *Adapter {
	if opts.DefaultBaseURL == "" {
		opts.DefaultBaseURL = defaultBaseURL
	}
	if opts.FormatError == nil {
		opts.FormatError = providers.ParseErrorMessage
	}
	if httpClient == nil {
		httpClient = providers.NewHTTPClient(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{opts: opts, httpClient: httpClient, logger: logger}
}

// ID returns the provider identifier
func (a *Adapter) ID() models.ProviderID {
	return a.opts.ID
}

// Name returns the provider display name
func (a *Adapter) Name() string {
	return a.opts.Name
}

// Send performs a chat completion request
func (a *Adapter) Send(ctx context.Context, req *providers.CanonicalRequest) (*providers.SendResult, error) {
	if req.Credentials.APIKey == "" {
		return providers.MissingAPIKey(a.opts.Name), nil
	}

	reqBody, err := json.Marshal(a.buildChatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", a.opts.Name, err)
	}

	url := a.baseURL(req.Credentials) + "/chat/completions"
	resp, err := providers.Do(ctx, a.httpClient, http.MethodPost, url, a.headers(req.Credentials.APIKey), reqBody)
	if err != nil {
		a.logger.Warn("chat completion request failed",
			zap.String("provider", string(a.opts.ID)),
			zap.String("model", req.ModelID),
			zap.Error(err),
		)
		return providers.Failed(services.ErrorTypeTransport, providers.TransportHint(a.opts.Name, err)), nil
	}

	if !resp.OK() {
		a.logger.Warn("chat completion rejected",
			zap.String("provider", string(a.opts.ID)),
			zap.String("model", req.ModelID),
			zap.Int("status", resp.StatusCode),
		)
		return providers.Failed(services.ErrorTypeProtocol, a.opts.FormatError(resp)), nil
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(resp.Body, &chatResp); err != nil {
		return providers.Failed(services.ErrorTypeProtocol, fmt.Sprintf("Invalid response from %s: %v", a.opts.Name, err)), nil
	}

	content := chatResp.content()
	if content == "" {
		return providers.EmptyContent(a.opts.Name), nil
	}

	return providers.Succeeded(content, chatResp.Usage.toTokenUsage()), nil
}

// TestConnection lists the models visible to the key
func (a *Adapter) TestConnection(ctx context.Context, creds providers.Credentials) (*providers.ConnectionResult, error) {
	if creds.APIKey == "" {
		return &providers.ConnectionResult{Success: false, Error: "API key is required for " + a.opts.Name}, nil
	}

	resp, err := providers.Do(ctx, a.httpClient, http.MethodGet, a.baseURL(creds)+"/models", a.headers(creds.APIKey), nil)
	if err != nil {
		return &providers.ConnectionResult{Success: false, Error: providers.TransportHint(a.opts.Name, err)}, nil
	}
	if !resp.OK() {
		result := providers.ConnectionFailure(resp)
		if resp.StatusCode == http.StatusTooManyRequests && a.opts.RateLimitNote != "" {
			result.Error += " " + a.opts.RateLimitNote
		}
		return result, nil
	}

	var list ModelList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return &providers.ConnectionResult{Success: false, Error: fmt.Sprintf("Invalid response from %s: %v", a.opts.Name, err)}, nil
	}

	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	sort.Strings(ids)

	return &providers.ConnectionResult{
		Success: true,
		Message: fmt.Sprintf("Connected to %s. Found %d models.", a.opts.Name, len(ids)),
		Models:  ids,
	}, nil
}

func (a *Adapter) baseURL(creds providers.Credentials) string {
	return providers.TrimBaseURL(creds.BaseURL, a.opts.DefaultBaseURL)
}

func (a *Adapter) headers(apiKey string) map[string]string {
	headers := make(map[string]string, len(a.opts.Headers)+1)
	for k, v := range a.opts.Headers {
		headers[k] = v
	}
	headers["Authorization"] = "Bearer " + apiKey
	return headers
}

// buildChatRequest converts the canonical request to the chat completions format
func (a *Adapter) buildChatRequest(req *providers.CanonicalRequest) *ChatRequest {
	msgs := req.Messages()
	chatReq := &ChatRequest{
		Model:    req.ModelID,
		Messages: make([]ChatMessage, len(msgs)),
	}
	for i, msg := range msgs {
		chatReq.Messages[i] = ChatMessage{Role: msg.Role, Content: msg.Content}
	}

	params := req.Params()
	chatReq.Temperature = params.Temperature
	chatReq.MaxTokens = params.MaxTokens
	chatReq.TopP = params.TopP
	chatReq.FrequencyPenalty = params.FrequencyPenalty
	chatReq.PresencePenalty = params.PresencePenalty
	if a.opts.SupportsTopK {
		chatReq.TopK = params.TopK
	}
	if len(params.StopSequences) > 0 {
		chatReq.Stop = params.StopSequences
	}

	return chatReq
}

// Chat completions request/response types

type ChatRequest struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	MaxTokens        *int          `json:"max_tokens,omitempty"`
	Temperature      *float64      `json:"temperature,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	TopK             *int          `json:"top_k,omitempty"`
	Stop             []string      `json:"stop,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage"`
}

type ChatChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage allows a null content, which some providers return on refusals
type ResponseMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type Usage struct {
	PromptTokens            *int                     `json:"prompt_tokens"`
	CompletionTokens        *int                     `json:"completion_tokens"`
	TotalTokens             *int                     `json:"total_tokens"`
	PromptTokensDetails     *PromptTokensDetails     `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

type PromptTokensDetails struct {
	CachedTokens *int `json:"cached_tokens"`
}

type CompletionTokensDetails struct {
	ReasoningTokens *int `json:"reasoning_tokens"`
}

type ModelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (r *ChatResponse) content() string {
	if len(r.Choices) == 0 || r.Choices[0].Message.Content == nil {
		return ""
	}
	return *r.Choices[0].Message.Content
}

func (u *Usage) toTokenUsage() *models.TokenUsage {
	if u == nil {
		return nil
	}
	usage := &models.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		usage.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil {
		usage.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return usage
}
