package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ForumNodeBB     = "nodebb"
	ForumMattermost = "mattermost"
)

type Config struct {
	Forum         ForumConfig
	LLM           LLMConfig
	Redis         RedisConfig
	OTel          OTelConfig
	Env           string
	Port          string
	CheckInterval time.Duration
	// RequestTimeout bounds each forum and LLM call; 0 keeps the transport default
	RequestTimeout time.Duration
}

type ForumConfig struct {
	Provider   string // "nodebb" or "mattermost"
	URL        string
	APIKey     string
	CategoryID string // NodeBB category id or Mattermost channel id
}

type LLMConfig struct {
	Provider      string // "openai", "anthropic" or "gemini"
	APIKey        string
	BaseURL       string
	Model         string
	MaxTokens     int
	Temperature   float64
	TopP          float64
	MaxInputChars int
}

type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

// Load reads configuration from the environment, loading .env first in
// development. The result is not modified afterwards.
func Load() (Config, error) {
	if getEnv("BOT_ENV", "development") == "development" {
		_ = godotenv.Load()
	}

	env := &envReader{}
	cfg := Config{
		Env:            getEnv("BOT_ENV", "development"),
		Port:           getEnv("PORT", "8081"),
		CheckInterval:  env.duration("CHECK_INTERVAL", 60*time.Second),
		RequestTimeout: env.duration("REQUEST_TIMEOUT", 0),
		Forum: ForumConfig{
			Provider:   getEnv("FORUM_PROVIDER", ForumNodeBB),
			URL:        getEnv("FORUM_URL", ""),
			APIKey:     getEnv("FORUM_API_KEY", ""),
			CategoryID: getEnv("FORUM_CATEGORY_ID", "2"),
		},
		LLM: LLMConfig{
			Provider:      getEnv("LLM_PROVIDER", "openai"),
			APIKey:        getEnv("LLM_API_KEY", ""),
			BaseURL:       getEnv("LLM_BASE_URL", ""),
			Model:         getEnv("LLM_MODEL", ""),
			MaxTokens:     env.int("LLM_MAX_TOKENS", 256),
			Temperature:   env.float("LLM_TEMPERATURE", 0.6),
			TopP:          env.float("LLM_TOP_P", 0.9),
			MaxInputChars: env.int("LLM_MAX_INPUT_CHARS", 0),
		},
		Redis: RedisConfig{
			URL:     getEnv("REDIS_URL", ""),
			LockTTL: env.duration("REPLY_LOCK_TTL", 5*time.Minute),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "llama-bot"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
	}

	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Forum.URL == "" || c.Forum.APIKey == "" {
		return fmt.Errorf("FORUM_URL and FORUM_API_KEY are required")
	}
	if c.Forum.Provider != ForumNodeBB && c.Forum.Provider != ForumMattermost {
		return fmt.Errorf("unsupported FORUM_PROVIDER: %s", c.Forum.Provider)
	}
	if c.Forum.CategoryID == "" {
		return fmt.Errorf("FORUM_CATEGORY_ID is required")
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("CHECK_INTERVAL must be positive")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// envReader parses typed variables and collects every malformed value so
// Load can report them together. Unset or empty variables use the fallback.
type envReader struct {
	errs []error
}

func (r *envReader) lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func (r *envReader) invalid(key, value, want string) {
	r.errs = append(r.errs, fmt.Errorf("invalid %s %q: expected %s", key, value, want))
}

func (r *envReader) int(key string, fallback int) int {
	value, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		r.invalid(key, value, "an integer")
		return fallback
	}
	return i
}

func (r *envReader) float(key string, fallback float64) float64 {
	value, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.invalid(key, value, "a number")
		return fallback
	}
	return f
}

// duration accepts Go durations ("90s") or plain seconds ("60").
func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	value, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	r.invalid(key, value, `a duration like "90s" or whole seconds`)
	return fallback
}
