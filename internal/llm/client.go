package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/cloudflare"
	"github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("nl2sql/llm")

var errEmptyResponse = errors.New("model returned an empty response")

// ModelConfig selects and configures the SQL model backend.
type ModelConfig struct {
	Provider            Provider
	Model               string
	OllamaURL           string
	OpenAIKey           string
	OpenAIBaseURL       string
	CloudflareAccountID string
	CloudflareToken     string
}

// NewChatModel builds the langchaingo model used for SQL generation.
func NewChatModel(cfg ModelConfig) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderOllama, "":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.OllamaURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.OllamaURL))
		}
		model, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama model: %w", err)
		}
		return model, nil
	case ProviderOpenAI:
		opts := []lcopenai.Option{lcopenai.WithToken(cfg.OpenAIKey), lcopenai.WithModel(cfg.Model)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, lcopenai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		model, err := lcopenai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai model: %w", err)
		}
		return model, nil
	case ProviderCloudflare:
		model, err := cloudflare.New(
			cloudflare.WithAccountID(cfg.CloudflareAccountID),
			cloudflare.WithToken(cfg.CloudflareToken),
			cloudflare.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloudflare model: %w", err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewChatClient returns an OpenAI-compatible chat client, e.g. for Groq.
// An empty key yields nil; callers fall back to rule-based behaviour.
func NewChatClient(apiKey, baseURL string) *openai.Client {
	if apiKey == "" {
		return nil
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(config)
}

// ChatCompleter is the part of *openai.Client the agents use.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// RetryPolicy bounds transport retries around a single model call.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxTries: 3, InitialInterval: 2 * time.Second, MaxInterval: 10 * time.Second}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	return b
}

// retry runs op with exponential backoff. Context cancellation is never
// retried and is surfaced wrapped so callers can detect deadlines.
func retry[T any](ctx context.Context, p RetryPolicy, logger *zap.Logger, name string, op func() (T, error)) (T, error) {
	if p.MaxTries == 0 {
		p = DefaultRetryPolicy()
	}
	wrapped := func() (T, error) {
		res, err := op()
		if err != nil && ctx.Err() != nil {
			return res, backoff.Permanent(err)
		}
		return res, err
	}
	res, err := backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(p.MaxTries),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("model call failed, retrying",
				zap.String("call", name),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return res, fmt.Errorf("%s: %w (%v)", name, ctxErr, err)
		}
		return res, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

func firstChoice(resp *llms.ContentResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
