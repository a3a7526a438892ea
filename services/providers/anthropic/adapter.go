package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services"
	"github.com/upb/ai-racers/services/providers"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
)

// knownModels is returned by TestConnection; the Messages API has no model listing
var knownModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

// Adapter implements providers.Adapter for the Anthropic Messages API
type Adapter struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a new Anthropic adapter
func New(httpClient *http.Client, logger *zap.Logger) *Adapter {
	if httpClient == nil {
		httpClient = providers.NewHTTPClient(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{httpClient: httpClient, logger: logger}
}

// ID returns the provider identifier
func (a *Adapter) ID() models.ProviderID {
	return models.ProviderAnthropic
}

// Name returns the provider display name
func (a *Adapter) Name() string {
	return "Anthropic"
}

// Send performs a Messages API request
func (a *Adapter) Send(ctx context.Context, req *providers.CanonicalRequest) (*providers.SendResult, error) {
	if req.Credentials.APIKey == "" {
		return providers.MissingAPIKey(a.Name()), nil
	}

	reqBody, err := json.Marshal(buildMessagesRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Anthropic request: %w", err)
	}

	resp, err := a.post(ctx, req.Credentials, reqBody)
	if err != nil {
		a.logger.Warn("messages request failed",
			zap.String("model", req.ModelID),
			zap.Error(err),
		)
		return providers.Failed(services.ErrorTypeTransport, providers.TransportHint(a.Name(), err)), nil
	}

	if !resp.OK() {
		a.logger.Warn("messages request rejected",
			zap.String("model", req.ModelID),
			zap.Int("status", resp.StatusCode),
		)
		return providers.Failed(services.ErrorTypeProtocol, providers.ParseErrorMessage(resp)), nil
	}

	var msgResp MessagesResponse
	if err := json.Unmarshal(resp.Body, &msgResp); err != nil {
		return providers.Failed(services.ErrorTypeProtocol, fmt.Sprintf("Invalid response from %s: %v", a.Name(), err)), nil
	}

	content := msgResp.text()
	if content == "" {
		return providers.EmptyContent(a.Name()), nil
	}

	return providers.Succeeded(content, msgResp.Usage.toTokenUsage()), nil
}

// TestConnection validates the key with a one-token message
func (a *Adapter) TestConnection(ctx context.Context, creds providers.Credentials) (*providers.ConnectionResult, error) {
	if creds.APIKey == "" {
		return &providers.ConnectionResult{Success: false, Error: "API key is required for " + a.Name()}, nil
	}

	reqBody, err := json.Marshal(&MessagesRequest{
		Model:     knownModels[len(knownModels)-1],
		MaxTokens: 1,
		Messages:  []MessageParam{{Role: "user", Content: "Hi"}},
	})
	if err != nil {
		return nil, err
	}

	resp, err := a.post(ctx, creds, reqBody)
	if err != nil {
		return &providers.ConnectionResult{Success: false, Error: providers.TransportHint(a.Name(), err)}, nil
	}
	if !resp.OK() {
		return providers.ConnectionFailure(resp), nil
	}

	available := make([]string, len(knownModels))
	copy(available, knownModels)
	return &providers.ConnectionResult{
		Success: true,
		Message: fmt.Sprintf("Connected to %s. Found %d models.", a.Name(), len(available)),
		Models:  available,
	}, nil
}

func (a *Adapter) post(ctx context.Context, creds providers.Credentials, body []byte) (*providers.HTTPResponse, error) {
	url := providers.TrimBaseURL(creds.BaseURL, defaultBaseURL) + "/messages"
	return providers.Do(ctx, a.httpClient, http.MethodPost, url, map[string]string{
		"x-api-key":         creds.APIKey,
		"anthropic-version": apiVersion,
	}, body)
}

// buildMessagesRequest converts the canonical request. The system prompt is a
// top-level field and penalties are not supported by the API.
func buildMessagesRequest(req *providers.CanonicalRequest) *MessagesRequest {
	params := req.Params()

	msgReq := &MessagesRequest{
		Model:       req.ModelID,
		MaxTokens:   defaultMaxTokens,
		Messages:    []MessageParam{{Role: "user", Content: req.UserPrompt}},
		System:      req.SystemPrompt,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
	}
	if params.MaxTokens != nil {
		msgReq.MaxTokens = *params.MaxTokens
	}
	if len(params.StopSequences) > 0 {
		msgReq.StopSequences = params.StopSequences
	}
	return msgReq
}

// Messages API request/response types

type MessagesRequest struct {
	Model         string         `json:"model"`
	MaxTokens     int            `json:"max_tokens"`
	Messages      []MessageParam `json:"messages"`
	System        string         `json:"system,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	TopK          *int           `json:"top_k,omitempty"`
	StopSequences []string       `json:"stop_sequences,omitempty"`
}

type MessageParam struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type MessagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      *Usage         `json:"usage"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Usage struct {
	InputTokens          *int `json:"input_tokens"`
	OutputTokens         *int `json:"output_tokens"`
	CacheReadInputTokens *int `json:"cache_read_input_tokens,omitempty"`
}

// text returns the first text block; thinking and tool blocks are skipped
func (r *MessagesResponse) text() string {
	for _, block := range r.Content {
		if block.Type == "text" || block.Type == "" {
			if block.Text != "" {
				return block.Text
			}
		}
	}
	return ""
}

func (u *Usage) toTokenUsage() *models.TokenUsage {
	if u == nil {
		return nil
	}
	usage := &models.TokenUsage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		CachedTokens:     u.CacheReadInputTokens,
	}
	if u.InputTokens != nil || u.OutputTokens != nil {
		total := usage.Input() + usage.Output()
		usage.TotalTokens = &total
	}
	return usage
}
