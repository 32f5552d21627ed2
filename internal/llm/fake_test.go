package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
)

type modelCall struct {
	messages []llms.MessageContent
	options  llms.CallOptions
}

// scriptedModel answers GenerateContent from a fixed list of replies; an
// empty reply with a non-nil error in errs fails that call.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   []modelCall
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	i := len(m.calls)
	m.calls = append(m.calls, modelCall{messages: messages, options: opts})
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.replies) {
		return nil, errors.New("no more replies")
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.replies[i]}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func textOf(mc llms.MessageContent) string {
	var out string
	for _, p := range mc.Parts {
		if t, ok := p.(llms.TextContent); ok {
			out += t.Text
		}
	}
	return out
}

type scriptedChat struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []openai.ChatCompletionRequest
}

func (c *scriptedChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := len(c.requests)
	c.requests = append(c.requests, req)
	if i < len(c.errs) && c.errs[i] != nil {
		return openai.ChatCompletionResponse{}, c.errs[i]
	}
	if i >= len(c.replies) {
		return openai.ChatCompletionResponse{}, errors.New("no more replies")
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: c.replies[i]}}},
	}, nil
}

var fastRetry = RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
