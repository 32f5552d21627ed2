// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all settings for the service and the CLI.
type Config struct {
	ReadOnlyDSN string `validate:"required"`
	DBADSN      string
	AppDSN      string

	QueryTimeout   time.Duration `validate:"gt=0"`
	ExplainTimeout time.Duration `validate:"gt=0"`
	MaxRetries     int           `validate:"min=1,max=10"`
	MaxResultRows  int           `validate:"min=1"`

	LLMProvider          string `validate:"oneof=ollama openai cloudflare"`
	OllamaURL            string `validate:"omitempty,url"`
	OllamaSQLModel       string
	OllamaEmbeddingModel string `validate:"required"`
	OpenAIAPIKey         string `validate:"required_if=LLMProvider openai"`
	OpenAIBaseURL        string `validate:"omitempty,url"`
	SQLModel             string
	CloudflareAccountID  string `validate:"required_if=LLMProvider cloudflare"`
	CloudflareAuthToken  string `validate:"required_if=LLMProvider cloudflare"`

	GroqAPIKey  string
	GroqBaseURL string `validate:"omitempty,url"`
	GroqModel   string

	RedisURL       string
	SchemaCacheTTL time.Duration
	IPFSAPIURL     string

	DBAUser         string `validate:"required_with=DBAPassword"`
	DBAPassword     string `validate:"required_with=DBAUser"`
	EnableAudit     bool
	ApprovalTimeout time.Duration `validate:"gt=0"`

	Env            string
	LogLevel       string
	HTTPAddr       string  `validate:"required"`
	RateLimitRPS   float64 `validate:"gte=0"`
	RateLimitBurst int     `validate:"gte=0"`
}

var validate = validator.New()

// Load reads .env when present, then the environment, and validates the
// result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Empty values fall back to
// defaults.
func FromEnv(lookup func(string) string) (*Config, error) {
	e := env{lookup: lookup}
	cfg := &Config{
		ReadOnlyDSN: e.str("NEON_READONLY_CONNECTION_STRING", ""),
		DBADSN:      e.str("NEON_DBA_CONNECTION_STRING", ""),
		AppDSN:      e.str("APP_DATABASE_URL", ""),

		QueryTimeout:   e.seconds("QUERY_TIMEOUT_SECONDS", 30),
		ExplainTimeout: e.seconds("EXPLAIN_TIMEOUT_SECONDS", 10),
		MaxRetries:     e.int("MAX_QUERY_RETRIES", 3),
		MaxResultRows:  e.int("MAX_RESULT_ROWS", 10000),

		LLMProvider:          strings.ToLower(e.str("LLM_PROVIDER", "ollama")),
		OllamaURL:            e.str("OLLAMA_URL", "http://localhost:11434"),
		OllamaSQLModel:       e.str("OLLAMA_SQL_MODEL", "sqlcoder"),
		OllamaEmbeddingModel: e.str("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
		OpenAIAPIKey:         e.str("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        e.str("OPENAI_BASE_URL", ""),
		SQLModel:             e.str("SQL_MODEL", "@cf/defog/sqlcoder-7b-2"),
		CloudflareAccountID:  e.str("CLOUDFLARE_ACCOUNT_ID", ""),
		CloudflareAuthToken:  e.str("CLOUDFLARE_AUTH_TOKEN", ""),

		GroqAPIKey:  e.str("GROQ_API_KEY", ""),
		GroqBaseURL: e.str("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqModel:   e.str("GROQ_MODEL", "llama-3.1-8b-instant"),

		RedisURL:       e.str("REDIS_URL", ""),
		SchemaCacheTTL: time.Duration(e.int("SCHEMA_CACHE_TTL_MINUTES", 10)) * time.Minute,
		IPFSAPIURL:     e.str("IPFS_API_URL", "localhost:5001"),

		DBAUser:         e.str("DBA_USER", ""),
		DBAPassword:     e.str("DBA_PASSWORD", ""),
		EnableAudit:     e.bool("ENABLE_AUDIT_LOGGING", true),
		ApprovalTimeout: time.Duration(e.int("SESSION_TIMEOUT_HOURS", 1)) * time.Hour,

		Env:            e.str("APP_ENV", "production"),
		LogLevel:       e.str("LOG_LEVEL", "info"),
		HTTPAddr:       e.str("HTTP_ADDR", ":8080"),
		RateLimitRPS:   e.float("RATE_LIMIT_RPS", 5),
		RateLimitBurst: e.int("RATE_LIMIT_BURST", 10),
	}
	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DBAEnabled reports whether privileged statements can be executed at all.
func (c *Config) DBAEnabled() bool {
	return c.DBADSN != ""
}

type env struct {
	lookup func(string) string
	errs   []error
}

func (e *env) str(key, fallback string) string {
	if v := strings.TrimSpace(e.lookup(key)); v != "" {
		return v
	}
	return fallback
}

func (e *env) int(key string, fallback int) int {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (e *env) float(key string, fallback float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (e *env) bool(key string, fallback bool) bool {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func (e *env) seconds(key string, fallback int) time.Duration {
	return time.Duration(e.int(key, fallback)) * time.Second
}
