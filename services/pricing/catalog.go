package pricing

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/upb/ai-racers/models"
)

// Wildcard is the model key that prices every model of a provider
const Wildcard = "*"

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// DefaultUnit is the pricing unit assumed when an entry names none
const DefaultUnit = "1M tokens"

// PriceRecord is the price of one model in USD per Unit
type PriceRecord struct {
	InputPrice    float64 `yaml:"inputPrice" json:"inputPrice"`
	OutputPrice   float64 `yaml:"outputPrice" json:"outputPrice"`
	Unit          string  `yaml:"unit" json:"unit"`
	ContextWindow int     `yaml:"contextWindow,omitempty" json:"contextWindow,omitempty"`
	Notes         string  `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// IsFree reports whether both prices are zero
func (p PriceRecord) IsFree() bool {
	return p.InputPrice == 0 && p.OutputPrice == 0
}

// Catalog maps provider -> model key -> price
type Catalog struct {
	Updated string                            `yaml:"updated"`
	Models  map[string]map[string]PriceRecord `yaml:"models"`
}

// LoadCatalog parses a YAML catalog
func LoadCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse pricing catalog: %w", err)
	}
	if c.Models == nil {
		c.Models = make(map[string]map[string]PriceRecord)
	}
	for provider, entries := range c.Models {
		for model, price := range entries {
			if price.InputPrice < 0 || price.OutputPrice < 0 {
				return nil, fmt.Errorf("negative price for %s/%s", provider, model)
			}
			switch price.Unit {
			case "":
				price.Unit = DefaultUnit
				entries[model] = price
			case DefaultUnit:
			default:
				return nil, fmt.Errorf("unsupported price unit %q for %s/%s", price.Unit, provider, model)
			}
		}
	}
	return &c, nil
}

// LoadCatalogFile reads a YAML catalog from disk
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing catalog %s: %w", path, err)
	}
	return LoadCatalog(data)
}

// DefaultCatalog returns the catalog compiled into the binary
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the exact entry for a model key
func (c *Catalog) Lookup(provider models.ProviderID, key string) (PriceRecord, bool) {
	price, ok := c.Models[string(provider)][key]
	return price, ok
}

// Keys returns the model keys of a provider, sorted
func (c *Catalog) Keys(provider models.ProviderID) []string {
	entries := c.Models[string(provider)]
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Providers returns the providers present in the catalog, sorted
func (c *Catalog) Providers() []models.ProviderID {
	ids := make([]models.ProviderID, 0, len(c.Models))
	for p := range c.Models {
		ids = append(ids, models.ProviderID(p))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
