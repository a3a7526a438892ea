package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services"
	"github.com/upb/ai-racers/services/providers"
)

func newRequest(baseURL string) *providers.CanonicalRequest {
	return &providers.CanonicalRequest{
		ProviderID:   models.ProviderGemini,
		ModelID:      "gemini-1.5-flash",
		SystemPrompt: "Be concise.",
		UserPrompt:   "Why is the sky blue?",
		Credentials:  providers.Credentials{APIKey: "AIza-test", BaseURL: baseURL},
	}
}

func TestSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "AIza-test", r.URL.Query().Get("key"))

		body, _ := io.ReadAll(r.Body)
		var req GenerateContentRequest
		require.NoError(t, json.Unmarshal(body, &req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "Why is the sky blue?", req.Contents[0].Parts[0].Text)
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "Be concise.", req.SystemInstruction.Parts[0].Text)
		assert.Nil(t, req.GenerationConfig)

		w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Rayleigh scattering."}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 9, "candidatesTokenCount": 4, "totalTokenCount": 13, "cachedContentTokenCount": 2}
		}`))
	}))
	defer server.Close()

	result, err := New(server.Client(), nil).Send(context.Background(), newRequest(server.URL))
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "Rayleigh scattering.", result.Response)
	assert.Equal(t, 9, result.TokenUsage.Input())
	assert.Equal(t, 4, result.TokenUsage.Output())
	assert.Equal(t, 13, result.TokenUsage.Total())
	require.NotNil(t, result.TokenUsage.CachedTokens)
	assert.Equal(t, 2, *result.TokenUsage.CachedTokens)
}

func TestBuildGenerateRequest_Parameters(t *testing.T) {
	temp, maxTokens, topK := 0.3, 200, 32
	req := newRequest("")
	req.ModelID = "models/gemini-pro"
	req.AdvancedParameters = &models.AdvancedParameters{
		Temperature:   &temp,
		MaxTokens:     &maxTokens,
		TopK:          &topK,
		StopSequences: []string{"STOP"},
	}

	genReq := buildGenerateRequest(req)
	require.NotNil(t, genReq.GenerationConfig)
	assert.Equal(t, &maxTokens, genReq.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, &topK, genReq.GenerationConfig.TopK)
	assert.Equal(t, []string{"STOP"}, genReq.GenerationConfig.StopSequences)

	body, err := json.Marshal(genReq)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"maxOutputTokens":200`)
	assert.NotContains(t, string(body), "topP")
}

func TestSend_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantError string
	}{
		{
			name:      "invalid argument",
			status:    http.StatusBadRequest,
			body:      `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`,
			wantError: "API key not valid. Please pass a valid API key.",
		},
		{
			name:      "blocked prompt without candidates",
			status:    http.StatusOK,
			body:      `{"promptFeedback":{"blockReason":"SAFETY"}}`,
			wantError: "No response content received from Gemini",
		},
		{
			name:      "candidate without parts",
			status:    http.StatusOK,
			body:      `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`,
			wantError: "No response content received from Gemini",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			result, err := New(server.Client(), nil).Send(context.Background(), newRequest(server.URL))
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Equal(t, tt.wantError, result.Error)
			assert.Equal(t, services.ErrorTypeProtocol, result.Kind)
		})
	}
}

func TestSend_TransportFailureHidesKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	result, err := New(nil, nil).Send(context.Background(), newRequest(url))
	require.NoError(t, err)
	assert.Equal(t, services.ErrorTypeTransport, result.Kind)
	assert.Contains(t, result.Error, "Cannot access Gemini API")
	assert.NotContains(t, result.Error, "AIza-test")
}

func TestTestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		if r.URL.Query().Get("key") != "good" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"models":[
			{"name":"models/gemini-1.5-pro"},
			{"name":"models/embedding-001"},
			{"name":"models/gemini-1.5-flash"}
		]}`))
	}))
	defer server.Close()

	adapter := New(server.Client(), nil)

	ok, err := adapter.TestConnection(context.Background(), providers.Credentials{APIKey: "good", BaseURL: server.URL})
	require.NoError(t, err)
	assert.True(t, ok.Success)
	assert.Equal(t, []string{"gemini-1.5-flash", "gemini-1.5-pro"}, ok.Models)

	bad, err := adapter.TestConnection(context.Background(), providers.Credentials{APIKey: "bad", BaseURL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "Authentication failed. Please check your API key.", bad.Error)
}

func TestBuildGenerateRequest_MaxTokensRoundTrip(t *testing.T) {
	maxTokens := 500
	req := newRequest("")
	req.AdvancedParameters = &models.AdvancedParameters{MaxTokens: &maxTokens}

	body, err := json.Marshal(buildGenerateRequest(req))
	require.NoError(t, err)

	var payload struct {
		GenerationConfig map[string]interface{} `json:"generationConfig"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, map[string]interface{}{"maxOutputTokens": float64(500)}, payload.GenerationConfig)
	assert.NotContains(t, string(body), "null")
}

func TestSend_MissingAPIKey(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	req := newRequest(server.URL)
	req.Credentials.APIKey = ""

	result, err := New(server.Client(), nil).Send(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "API key is required for Gemini", result.Error)
	assert.Equal(t, services.ErrorTypeConfiguration, result.Kind)
	assert.Zero(t, calls)
}
