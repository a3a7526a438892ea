package comparison

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services"
	"github.com/upb/ai-racers/services/pricing"
	"github.com/upb/ai-racers/services/providers"
	"github.com/upb/ai-racers/utils"
)

// Dispatcher sends one canonical request and reports the timed outcome.
// *providers.Router is the production implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *providers.CanonicalRequest) *providers.ComparisonAPIResponse
}

// DispatcherFunc adapts a function to the Dispatcher interface
type DispatcherFunc func(ctx context.Context, req *providers.CanonicalRequest) *providers.ComparisonAPIResponse

// Dispatch calls f(ctx, req)
func (f DispatcherFunc) Dispatch(ctx context.Context, req *providers.CanonicalRequest) *providers.ComparisonAPIResponse {
	return f(ctx, req)
}

// CredentialResolver looks up the locally held configuration of a provider
type CredentialResolver interface {
	Credentials(id models.ProviderID) (providers.Credentials, bool)
}

// CredentialMap is a static CredentialResolver
type CredentialMap map[models.ProviderID]providers.Credentials

// Credentials implements CredentialResolver
func (m CredentialMap) Credentials(id models.ProviderID) (providers.Credentials, bool) {
	creds, ok := m[id]
	return creds, ok
}

// CostEstimator prices a response; *pricing.Resolver implements it
type CostEstimator interface {
	EstimateCost(provider models.ProviderID, modelID string, usage *models.TokenUsage) *pricing.CostEstimate
}

// Submission is one comparison: the prompts, the parameters and the pairs to race
type Submission struct {
	TestName           string                     `json:"testName,omitempty"`
	SystemPrompt       string                     `json:"systemPrompt,omitempty"`
	UserPrompt         string                     `json:"userPrompt" validate:"required"`
	Pairs              []models.Pair              `json:"pairs" validate:"required,min=1,dive"`
	AdvancedParameters *models.AdvancedParameters `json:"advancedParameters,omitempty"`
}

// Validate checks the submission before anything is dispatched
func (s *Submission) Validate() error {
	if strings.TrimSpace(s.UserPrompt) == "" {
		return services.ErrEmptyPrompt
	}
	if len(s.Pairs) == 0 {
		return services.ErrNoPairs
	}
	if err := utils.ValidateStruct(s); err != nil {
		return services.NewDomainError(services.ErrorTypeValidation, "invalid submission", err).
			WithDetail("fields", utils.GetValidationFields(err))
	}
	for _, p := range s.Pairs {
		if !p.ProviderID.IsValid() {
			return fmt.Errorf("%w: %s", services.ErrUnknownProvider, p.ProviderID)
		}
	}
	return nil
}

// UniquePairs returns the pairs with duplicates removed, first occurrence kept
func (s *Submission) UniquePairs() []models.Pair {
	seen := make(map[string]bool, len(s.Pairs))
	pairs := make([]models.Pair, 0, len(s.Pairs))
	for _, p := range s.Pairs {
		if seen[p.Key()] {
			continue
		}
		seen[p.Key()] = true
		pairs = append(pairs, p)
	}
	return pairs
}

func (s *Submission) request(pair models.Pair, creds providers.Credentials) *providers.CanonicalRequest {
	return &providers.CanonicalRequest{
		ProviderID:         pair.ProviderID,
		ModelID:            pair.ModelID,
		SystemPrompt:       s.SystemPrompt,
		UserPrompt:         s.UserPrompt,
		Credentials:        creds,
		AdvancedParameters: s.AdvancedParameters,
	}
}
