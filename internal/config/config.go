package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type ModelProvider string

const (
	ProviderAgent     ModelProvider = "agent"
	ProviderOpenAI    ModelProvider = "openai"
	ProviderAnthropic ModelProvider = "anthropic"
)

type Config struct {
	Port        string
	DatabaseURL string // empty = in-memory transcripts

	LogLevel string
	LogJSON  bool

	Model ModelConfig
	Odoo  OdooConfig

	CreatePolicy string // execute | confirm | disabled
	PolicyFile   string

	SessionTTL      time.Duration
	DefaultTimeout  time.Duration
	ContextCacheTTL time.Duration

	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

type ModelConfig struct {
	Provider       ModelProvider
	AgentURL       string
	OpenAIKey      string
	OpenAIModel    string
	OpenAIBaseURL  string
	AnthropicKey   string
	AnthropicModel string
	AnthropicURL   string
	MaxTokens      int
}

type OdooConfig struct {
	URL      string
	WebURL   string
	DB       string
	Username string
	Password string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getBoolEnv("LOG_JSON", false),

		Model: ModelConfig{
			Provider:       ModelProvider(strings.ToLower(getEnv("MODEL_PROVIDER", string(ProviderAgent)))),
			AgentURL:       getEnv("AI_AGENT_URL", "http://localhost:8000"),
			OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:    getEnv("OPENAI_MODEL", ""),
			OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
			AnthropicKey:   getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel: getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-20241022"),
			AnthropicURL:   getEnv("ANTHROPIC_BASE_URL", ""),
			MaxTokens:      getIntEnv("MODEL_MAX_TOKENS", 2000),
		},

		Odoo: OdooConfig{
			URL:      getEnv("ODOO_URL", "http://localhost:8069"),
			WebURL:   getEnv("ODOO_WEB_URL", ""),
			DB:       getEnv("ODOO_DB", ""),
			Username: getEnv("ODOO_USERNAME", ""),
			Password: getEnv("ODOO_PASSWORD", ""),
		},

		CreatePolicy: strings.ToLower(getEnv("ACTION_CREATE_POLICY", "confirm")),
		PolicyFile:   getEnv("ACTION_POLICY_FILE", ""),

		SessionTTL:      getDurationEnv("SESSION_TTL", 24*time.Hour),
		DefaultTimeout:  getDurationEnv("DEFAULT_TIMEOUT", 30*time.Second),
		ContextCacheTTL: getDurationEnv("CONTEXT_CACHE_TTL", 5*time.Minute),

		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "http://localhost:8069,http://localhost:3000")),
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Hour),
	}

	if cfg.Odoo.WebURL == "" {
		cfg.Odoo.WebURL = cfg.Odoo.URL
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Model.Provider {
	case ProviderAgent:
		if c.Model.AgentURL == "" {
			return fmt.Errorf("AI_AGENT_URL must be set for provider %q", c.Model.Provider)
		}
	case ProviderOpenAI:
		if c.Model.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY must be set for provider %q", c.Model.Provider)
		}
	case ProviderAnthropic:
		if c.Model.AnthropicKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY must be set for provider %q", c.Model.Provider)
		}
	default:
		return fmt.Errorf("unknown MODEL_PROVIDER %q", c.Model.Provider)
	}

	switch c.CreatePolicy {
	case "execute", "confirm", "disabled":
	default:
		return fmt.Errorf("unknown ACTION_CREATE_POLICY %q", c.CreatePolicy)
	}

	if c.Odoo.DB == "" || c.Odoo.Username == "" {
		return fmt.Errorf("ODOO_DB and ODOO_USERNAME must be set")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// getDurationEnv accepts Go durations ("90s") or plain seconds ("90").
func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
