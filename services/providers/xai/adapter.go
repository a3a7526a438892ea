package xai

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services/providers/openai"
)

const defaultBaseURL = "https://api.x.ai/v1"

// New creates the xAI (Grok) adapter. xAI speaks the OpenAI chat completions
// format and ignores top_k.
func New(httpClient *http.Client, logger *zap.Logger) *openai.Adapter {
	return openai.NewCompatible(openai.Options{
		ID:             models.ProviderXAI,
		Name:           "xAI",
		DefaultBaseURL: defaultBaseURL,
		RateLimitNote:  "(Note: xAI has a 5 requests per minute limit)",
	}, httpClient, logger)
}
