package openrouter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services/providers"
	"github.com/upb/ai-racers/services/providers/openai"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultReferer = "https://ai-racers.app"
	DefaultTitle   = "AI Racers"
)

// New creates the OpenRouter adapter. referer and title identify the app to
// OpenRouter; empty values fall back to the defaults.
func New(httpClient *http.Client, logger *zap.Logger, referer, title string) *openai.Adapter {
	if referer == "" {
		referer = DefaultReferer
	}
	if title == "" {
		title = DefaultTitle
	}
	return openai.NewCompatible(openai.Options{
		ID:             models.ProviderOpenRouter,
		Name:           "OpenRouter",
		DefaultBaseURL: defaultBaseURL,
		SupportsTopK:   true,
		Headers: map[string]string{
			"HTTP-Referer": referer,
			"X-Title":      title,
		},
		FormatError: formatError,
	}, httpClient, logger)
}

type errorResponse struct {
	Error struct {
		Message  string      `json:"message"`
		Code     interface{} `json:"code"`
		Metadata struct {
			Raw          interface{} `json:"raw"`
			ProviderName string      `json:"provider_name"`
		} `json:"metadata"`
	} `json:"error"`
}

// formatError reports everything OpenRouter tells us about an upstream
// failure, which often includes the routed provider's own error payload
func formatError(resp *providers.HTTPResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status: %d (%s)", resp.StatusCode, resp.StatusText)

	var body errorResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		if text := strings.TrimSpace(string(resp.Body)); text != "" {
			b.WriteString("\n" + text)
		}
		return b.String()
	}

	if body.Error.Message != "" {
		b.WriteString("\n" + body.Error.Message)
	}
	if body.Error.Code != nil {
		fmt.Fprintf(&b, "\nError Code: %v", body.Error.Code)
	}
	if raw := rawDetails(body.Error.Metadata.Raw); raw != "" {
		b.WriteString("\n\nDetails:\n" + raw)
	}
	if body.Error.Metadata.ProviderName != "" {
		b.WriteString("\nProvider: " + body.Error.Metadata.ProviderName)
	}
	return b.String()
}

func rawDetails(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
