package pricing

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/ai-racers/models"
)

var (
	versionSuffix = regexp.MustCompile(`-v\d+(\.\d+)?$`)
	dateSuffixes  = []*regexp.Regexp{
		regexp.MustCompile(`-\d{4}-\d{2}-\d{2}$`),
		regexp.MustCompile(`-\d{8}$`),
		regexp.MustCompile(`-\d{6}$`),
	}
)

// CostEstimate is the cost of one response in USD
type CostEstimate struct {
	InputCost     float64     `json:"inputCost"`
	OutputCost    float64     `json:"outputCost"`
	TotalCost     float64     `json:"totalCost"`
	FormattedCost string      `json:"formattedCost"`
	InputTokens   int         `json:"inputTokens"`
	OutputTokens  int         `json:"outputTokens"`
	Price         PriceRecord `json:"price"`
}

// Resolver answers price and cost queries against a catalog. It is read-only
// and safe for concurrent use.
type Resolver struct {
	catalog *Catalog
	logger  *zap.Logger
}

// NewResolver creates a resolver; a nil catalog means the embedded default
func NewResolver(catalog *Catalog, logger *zap.Logger) *Resolver {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{catalog: catalog, logger: logger}
}

// Catalog returns the underlying catalog
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// ResolvePrice finds the price of a model: exact key, then the provider
// wildcard, then the closest fuzzy match. Nil when nothing matches.
func (r *Resolver) ResolvePrice(provider models.ProviderID, modelID string) *PriceRecord {
	if price, ok := r.catalog.Lookup(provider, modelID); ok {
		return &price
	}
	if price, ok := r.catalog.Lookup(provider, Wildcard); ok {
		return &price
	}

	key, ok := FindBestMatch(modelID, r.catalog.Keys(provider))
	if !ok {
		return nil
	}
	r.logger.Debug("fuzzy price match",
		zap.String("provider", string(provider)),
		zap.String("model", modelID),
		zap.String("matched", key),
	)
	price, _ := r.catalog.Lookup(provider, key)
	return &price
}

// EstimateCost prices a response. Nil when usage is absent or the price is unknown.
func (r *Resolver) EstimateCost(provider models.ProviderID, modelID string, usage *models.TokenUsage) *CostEstimate {
	if usage == nil {
		return nil
	}
	price := r.ResolvePrice(provider, modelID)
	if price == nil {
		return nil
	}

	in, out := usage.Input(), usage.Output()
	inputCost := float64(in) / 1_000_000 * price.InputPrice
	outputCost := float64(out) / 1_000_000 * price.OutputPrice

	total := inputCost + outputCost

	return &CostEstimate{
		InputCost:     inputCost,
		OutputCost:    outputCost,
		TotalCost:     total,
		FormattedCost: FormatCost(total),
		InputTokens:   in,
		OutputTokens:  out,
		Price:         *price,
	}
}

// NormalizeModelName lowercases a model ID and strips a trailing release date
// (-YYYY-MM-DD, -YYYYMMDD, -YYYYMM) and version (-vN, -vN.M)
func NormalizeModelName(modelID string) string {
	name := strings.ToLower(strings.TrimSpace(modelID))
	name = versionSuffix.ReplaceAllString(name, "")
	for _, re := range dateSuffixes {
		name = re.ReplaceAllString(name, "")
	}
	return versionSuffix.ReplaceAllString(name, "")
}

// FindBestMatch picks the catalog key closest to modelID after normalization.
// A key that is a prefix of the model (a dated or suffixed release of a known
// family) beats a key the model is a prefix of, which beats plain substring
// containment of the key in the model name. Within a tier the longest normalized key wins and ties go to
// the lexicographically smallest key.
func FindBestMatch(modelID string, keys []string) (string, bool) {
	target := NormalizeModelName(modelID)
	if target == "" {
		return "", false
	}

	const (
		tierNone = iota
		tierContains
		tierExtends
		tierPrefix
	)

	bestKey, bestTier, bestLen := "", tierNone, 0
	for _, key := range keys {
		if key == Wildcard {
			continue
		}
		norm := NormalizeModelName(key)
		if norm == "" {
			continue
		}

		tier := tierNone
		switch {
		case strings.HasPrefix(target, norm):
			tier = tierPrefix
		case strings.HasPrefix(norm, target):
			tier = tierExtends
		case strings.Contains(target, norm):
			tier = tierContains
		}
		if tier == tierNone {
			continue
		}

		better := tier > bestTier ||
			(tier == bestTier && len(norm) > bestLen) ||
			(tier == bestTier && len(norm) == bestLen && key < bestKey)
		if better {
			bestKey, bestTier, bestLen = key, tier, len(norm)
		}
	}

	return bestKey, bestTier != tierNone
}
