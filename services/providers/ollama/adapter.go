package ollama

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

const defaultEndpoint = "http://localhost:11434"

// Adapter implements providers.Adapter for a local Ollama server
type Adapter struct {
	httpClient  *http.Client
	logger      *zap.Logger
	useGenerate bool
}

// Option customises the adapter
type Option func(*Adapter)

// WithGenerateAPI switches to the legacy /api/generate endpoint, which takes a
// single prompt: the system prompt and the user prompt joined by a blank line
func WithGenerateAPI(enabled bool) Option {
	return func(a *Adapter) {
		a.useGenerate = enabled
	}
}

// New creates a new Ollama adapter
func New(httpClient *http.Client, logger *zap.Logger, opts ...Option) *Adapter {
	if httpClient == nil {
		httpClient = providers.NewHTTPClient(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{httpClient: httpClient, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the provider identifier
func (a *Adapter) ID() models.ProviderID {
	return models.ProviderOllama
}

// Name returns the provider display name
func (a *Adapter) Name() string {
	return "Ollama"
}

// Send runs the model on the Ollama server. No API key is needed.
func (a *Adapter) Send(ctx context.Context, req *providers.CanonicalRequest) (*providers.SendResult, error) {
	endpoint := resolveEndpoint(req.Credentials)

	path := "/api/chat"
	var payload interface{} = buildChatRequest(req)
	if a.useGenerate {
		path = "/api/generate"
		payload = buildGenerateRequest(req)
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Ollama request: %w", err)
	}

	resp, err := providers.Do(ctx, a.httpClient, http.MethodPost, endpoint+path, nil, reqBody)
	if err != nil {
		a.logger.Warn("ollama request failed",
			zap.String("endpoint", endpoint),
			zap.String("model", req.ModelID),
			zap.Error(err),
		)
		return providers.Failed(services.ErrorTypeTransport, connectHint(endpoint)), nil
	}

	if !resp.OK() {
		a.logger.Warn("ollama request rejected",
			zap.String("model", req.ModelID),
			zap.Int("status", resp.StatusCode),
		)
		return providers.Failed(services.ErrorTypeProtocol, providers.ParseErrorMessage(resp)), nil
	}

	var genResp Response
	if err := json.Unmarshal(resp.Body, &genResp); err != nil {
		return providers.Failed(services.ErrorTypeProtocol, fmt.Sprintf("Invalid response from %s: %v", a.Name(), err)), nil
	}

	content := genResp.Response
	if genResp.Message != nil {
		content = genResp.Message.Content
	}
	if content == "" {
		return providers.EmptyContent(a.Name()), nil
	}

	return providers.Succeeded(content, genResp.tokenUsage()), nil
}

// TestConnection lists the locally installed models
func (a *Adapter) TestConnection(ctx context.Context, creds providers.Credentials) (*providers.ConnectionResult, error) {
	endpoint := resolveEndpoint(creds)

	resp, err := providers.Do(ctx, a.httpClient, http.MethodGet, endpoint+"/api/tags", nil, nil)
	if err != nil {
		return &providers.ConnectionResult{Success: false, Error: connectHint(endpoint)}, nil
	}
	if !resp.OK() {
		return providers.ConnectionFailure(resp), nil
	}

	var tags TagsResponse
	if err := json.Unmarshal(resp.Body, &tags); err != nil {
		return &providers.ConnectionResult{Success: false, Error: fmt.Sprintf("Invalid response from %s: %v", a.Name(), err)}, nil
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return &providers.ConnectionResult{
			Success: true,
			Message: `Ollama is running but no models are installed. Run "ollama pull <model>" to download a model.`,
			Models:  names,
		}, nil
	}

	return &providers.ConnectionResult{
		Success: true,
		Message: fmt.Sprintf("Connected to %s. Found %d models.", a.Name(), len(names)),
		Models:  names,
	}, nil
}

func resolveEndpoint(creds providers.Credentials) string {
	configured := creds.Endpoint
	if configured == "" {
		configured = creds.BaseURL
	}
	return providers.TrimBaseURL(configured, defaultEndpoint)
}

func connectHint(endpoint string) string {
	return fmt.Sprintf("Cannot connect to Ollama at %s. Make sure Ollama is running (ollama serve)", endpoint)
}

func buildChatRequest(req *providers.CanonicalRequest) *ChatRequest {
	msgs := req.Messages()
	chatReq := &ChatRequest{
		Model:    req.ModelID,
		Messages: make([]Message, len(msgs)),
		Stream:   false,
		Options:  buildOptions(req.AdvancedParameters),
	}
	for i, msg := range msgs {
		chatReq.Messages[i] = Message{Role: msg.Role, Content: msg.Content}
	}
	return chatReq
}

func buildGenerateRequest(req *providers.CanonicalRequest) *GenerateRequest {
	prompt := req.UserPrompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + req.UserPrompt
	}
	return &GenerateRequest{
		Model:   req.ModelID,
		Prompt:  prompt,
		Stream:  false,
		Options: buildOptions(req.AdvancedParameters),
	}
}

// buildOptions maps the advanced parameters onto Ollama's runtime options
func buildOptions(params *models.AdvancedParameters) map[string]any {
	if params.IsEmpty() {
		return nil
	}
	opts := make(map[string]any)
	if params.Temperature != nil {
		opts["temperature"] = *params.Temperature
	}
	if params.MaxTokens != nil {
		opts["num_predict"] = *params.MaxTokens
	}
	if params.TopP != nil {
		opts["top_p"] = *params.TopP
	}
	if params.TopK != nil {
		opts["top_k"] = *params.TopK
	}
	if params.FrequencyPenalty != nil {
		opts["frequency_penalty"] = *params.FrequencyPenalty
	}
	if params.PresencePenalty != nil {
		opts["presence_penalty"] = *params.PresencePenalty
	}
	if len(params.StopSequences) > 0 {
		opts["stop"] = params.StopSequences
	}
	return opts
}

// Ollama request/response types

type ChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type GenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response covers both /api/chat (message) and /api/generate (response)
type Response struct {
	Model           string   `json:"model"`
	Message         *Message `json:"message,omitempty"`
	Response        string   `json:"response"`
	Done            bool     `json:"done"`
	PromptEvalCount int      `json:"prompt_eval_count"`
	EvalCount       int      `json:"eval_count"`
}

type TagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// tokenUsage is nil when Ollama reported no counts, e.g. on a cached prompt
func (r *Response) tokenUsage() *models.TokenUsage {
	if r.PromptEvalCount == 0 && r.EvalCount == 0 {
		return nil
	}
	prompt, completion := r.PromptEvalCount, r.EvalCount
	total := prompt + completion
	return &models.TokenUsage{
		PromptTokens:     &prompt,
		CompletionTokens: &completion,
		TotalTokens:      &total,
	}
}
