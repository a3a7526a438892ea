package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services"
	"github.com/upb/ai-racers/services/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Adapter implements providers.Adapter for the Gemini generateContent API
type Adapter struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a new Gemini adapter
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
	return models.ProviderGemini
}

// Name returns the provider display name
func (a *Adapter) Name() string {
	return "Gemini"
}

// Send performs a generateContent request
func (a *Adapter) Send(ctx context.Context, req *providers.CanonicalRequest) (*providers.SendResult, error) {
	if req.Credentials.APIKey == "" {
		return providers.MissingAPIKey(a.Name()), nil
	}

	reqBody, err := json.Marshal(buildGenerateRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Gemini request: %w", err)
	}

	model := strings.TrimPrefix(req.ModelID, "models/")
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		providers.TrimBaseURL(req.Credentials.BaseURL, defaultBaseURL),
		url.PathEscape(model),
		url.QueryEscape(req.Credentials.APIKey),
	)

	resp, err := providers.Do(ctx, a.httpClient, http.MethodPost, endpoint, nil, reqBody)
	if err != nil {
		a.logger.Warn("generateContent request failed",
			zap.String("model", req.ModelID),
			zap.String("api_key", providers.MaskAPIKey(req.Credentials.APIKey)),
		)
		// the URL carries the key, so the cause is not echoed back
		return providers.Failed(services.ErrorTypeTransport, providers.TransportHint(a.Name(), redact(err, req.Credentials.APIKey))), nil
	}

	if !resp.OK() {
		a.logger.Warn("generateContent rejected",
			zap.String("model", req.ModelID),
			zap.Int("status", resp.StatusCode),
		)
		return providers.Failed(services.ErrorTypeProtocol, providers.ParseErrorMessage(resp)), nil
	}

	var genResp GenerateContentResponse
	if err := json.Unmarshal(resp.Body, &genResp); err != nil {
		return providers.Failed(services.ErrorTypeProtocol, fmt.Sprintf("Invalid response from %s: %v", a.Name(), err)), nil
	}

	content := genResp.text()
	if content == "" {
		return providers.EmptyContent(a.Name()), nil
	}

	return providers.Succeeded(content, genResp.UsageMetadata.toTokenUsage()), nil
}

// TestConnection lists the Gemini models visible to the key
func (a *Adapter) TestConnection(ctx context.Context, creds providers.Credentials) (*providers.ConnectionResult, error) {
	if creds.APIKey == "" {
		return &providers.ConnectionResult{Success: false, Error: "API key is required for " + a.Name()}, nil
	}

	endpoint := fmt.Sprintf("%s/models?key=%s",
		providers.TrimBaseURL(creds.BaseURL, defaultBaseURL),
		url.QueryEscape(creds.APIKey),
	)
	resp, err := providers.Do(ctx, a.httpClient, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return &providers.ConnectionResult{Success: false, Error: providers.TransportHint(a.Name(), redact(err, creds.APIKey))}, nil
	}
	if !resp.OK() {
		// Gemini answers an invalid key with 400
		if resp.StatusCode == http.StatusBadRequest {
			return &providers.ConnectionResult{Success: false, Error: "Authentication failed. Please check your API key."}, nil
		}
		return providers.ConnectionFailure(resp), nil
	}

	var list ModelList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return &providers.ConnectionResult{Success: false, Error: fmt.Sprintf("Invalid response from %s: %v", a.Name(), err)}, nil
	}

	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		name := strings.TrimPrefix(m.Name, "models/")
		if strings.Contains(name, "gemini") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return &providers.ConnectionResult{
		Success: true,
		Message: fmt.Sprintf("Connected to %s. Found %d models.", a.Name(), len(names)),
		Models:  names,
	}, nil
}

func redact(err error, key string) error {
	if key == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), url.QueryEscape(key), "REDACTED"))
}

// buildGenerateRequest converts the canonical request. The system prompt
// travels as systemInstruction.
func buildGenerateRequest(req *providers.CanonicalRequest) *GenerateContentRequest {
	genReq := &GenerateContentRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: req.UserPrompt}}}},
	}
	if req.SystemPrompt != "" {
		genReq.SystemInstruction = &Content{Parts: []Part{{Text: req.SystemPrompt}}}
	}

	if req.AdvancedParameters.IsEmpty() {
		return genReq
	}
	params := req.Params()
	genReq.GenerationConfig = &GenerationConfig{
		Temperature:      params.Temperature,
		MaxOutputTokens:  params.MaxTokens,
		TopP:             params.TopP,
		TopK:             params.TopK,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
	}
	if len(params.StopSequences) > 0 {
		genReq.GenerationConfig.StopSequences = params.StopSequences
	}
	return genReq
}

// generateContent request/response types

type GenerateContentRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

type GenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	TopK             *int     `json:"topK,omitempty"`
	FrequencyPenalty *float64 `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64 `json:"presencePenalty,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
}

type GenerateContentResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type UsageMetadata struct {
	PromptTokenCount        *int `json:"promptTokenCount"`
	CandidatesTokenCount    *int `json:"candidatesTokenCount"`
	TotalTokenCount         *int `json:"totalTokenCount"`
	CachedContentTokenCount *int `json:"cachedContentTokenCount,omitempty"`
	ThoughtsTokenCount      *int `json:"thoughtsTokenCount,omitempty"`
}

type ModelList struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (r *GenerateContentResponse) text() string {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Parts[0].Text
}

func (u *UsageMetadata) toTokenUsage() *models.TokenUsage {
	if u == nil {
		return nil
	}
	return &models.TokenUsage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.TotalTokenCount,
		CachedTokens:     u.CachedContentTokenCount,
		ReasoningTokens:  u.ThoughtsTokenCount,
	}
}
