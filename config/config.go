package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services/providers"
)

// Config represents the complete application configuration
type Config struct {
	Environment   string
	HTTP          HTTPConfig
	Providers     ProvidersConfig
	Pricing       PricingConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
}

// HTTPConfig holds the outbound HTTP client settings shared by all adapters
type HTTPConfig struct {
	Timeout time.Duration
}

// ProvidersConfig holds the locally held settings of every provider
type ProvidersConfig struct {
	OpenAI     ProviderConfig
	Anthropic  ProviderConfig
	Gemini     ProviderConfig
	XAI        ProviderConfig
	OpenRouter OpenRouterConfig
	Ollama     OllamaConfig
}

// ProviderConfig holds a hosted provider's API key and optional base URL override
type ProviderConfig struct {
	APIKey  string
	BaseURL string
}

// OpenRouterConfig adds the attribution headers OpenRouter asks callers to send
type OpenRouterConfig struct {
	ProviderConfig
	Referer string
	Title   string
}

// OllamaConfig holds the local Ollama server settings. No key is needed.
type OllamaConfig struct {
	Endpoint    string
	UseGenerate bool // legacy /api/generate instead of /api/chat
}

// PricingConfig points at an optional catalog file replacing the embedded one
type PricingConfig struct {
	CatalogPath string
}

// DatabaseConfig holds PostgreSQL settings for run history.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTP: HTTPConfig{
			Timeout: getEnvAsDuration("HTTP_TIMEOUT", providers.DefaultTimeout),
		},
		Providers: ProvidersConfig{
			OpenAI:    loadProviderConfig("OPENAI"),
			Anthropic: loadProviderConfig("ANTHROPIC"),
			Gemini:    loadProviderConfig("GEMINI"),
			XAI:       loadProviderConfig("XAI"),
			OpenRouter: OpenRouterConfig{
				ProviderConfig: loadProviderConfig("OPENROUTER"),
				Referer:        getEnv("OPENROUTER_REFERER", ""),
				Title:          getEnv("OPENROUTER_TITLE", ""),
			},
			Ollama: OllamaConfig{
				Endpoint:    getEnv("OLLAMA_ENDPOINT", "http://localhost:11434"),
				UseGenerate: getEnvAsBool("OLLAMA_USE_GENERATE", false),
			},
		},
		Pricing: PricingConfig{
			CatalogPath: getEnv("PRICING_CATALOG_PATH", ""),
		},
		Database: loadDatabaseConfig(),
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", ""),
		},
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "text"
		if cfg.IsProduction() {
			cfg.Observability.LogFormat = "json"
		}
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}

	bases := map[string]string{
		"OPENAI_BASE_URL":     c.Providers.OpenAI.BaseURL,
		"ANTHROPIC_BASE_URL":  c.Providers.Anthropic.BaseURL,
		"GEMINI_BASE_URL":     c.Providers.Gemini.BaseURL,
		"XAI_BASE_URL":        c.Providers.XAI.BaseURL,
		"OPENROUTER_BASE_URL": c.Providers.OpenRouter.BaseURL,
		"OLLAMA_ENDPOINT":     c.Providers.Ollama.Endpoint,
	}
	for name, raw := range bases {
		if raw == "" {
			continue
		}
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	// Run history is optional, but a partial DB_* setup is a mistake
	if c.Database.ConnectionString == "" && c.Database.Host != "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "error":
	case "":
		return fmt.Errorf("log level is required")
	default:
		return fmt.Errorf("unsupported log level %q", c.Observability.LogLevel)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Credentials returns the settings needed to reach a provider. Hosted
// providers count as configured once an API key is set; Ollama always is.
func (c *Config) Credentials(id models.ProviderID) (providers.Credentials, bool) {
	var pc ProviderConfig
	switch id {
	case models.ProviderOpenAI:
		pc = c.Providers.OpenAI
	case models.ProviderAnthropic:
		pc = c.Providers.Anthropic
	case models.ProviderGemini:
		pc = c.Providers.Gemini
	case models.ProviderXAI:
		pc = c.Providers.XAI
	case models.ProviderOpenRouter:
		pc = c.Providers.OpenRouter.ProviderConfig
	case models.ProviderOllama:
		return providers.Credentials{Endpoint: c.Providers.Ollama.Endpoint}, true
	default:
		return providers.Credentials{}, false
	}

	if pc.APIKey == "" {
		return providers.Credentials{}, false
	}
	return providers.Credentials{APIKey: pc.APIKey, BaseURL: pc.BaseURL}, true
}

// ConfiguredProviders lists the providers Credentials can resolve, in display order
func (c *Config) ConfiguredProviders() []models.ProviderID {
	var ids []models.ProviderID
	for _, id := range models.AllProviders() {
		if _, ok := c.Credentials(id); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Enabled reports whether run history has a database to write to
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != "" || c.Host != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadProviderConfig(prefix string) ProviderConfig {
	return ProviderConfig{
		APIKey:  strings.TrimSpace(getEnv(prefix+"_API_KEY", "")),
		BaseURL: getEnv(prefix+"_BASE_URL", ""),
	}
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Neither set means history is disabled.
func loadDatabaseConfig() DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}
	if host := getEnv("DB_HOST", ""); host != "" {
		pool.Host = host
		pool.Port = getEnvAsInt("DB_PORT", 5432)
		pool.User = getEnv("DB_USER", "")
		pool.Password = getEnv("DB_PASSWORD", "")
		pool.Database = getEnv("DB_NAME", "airacers")
		pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	}
	return pool
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
